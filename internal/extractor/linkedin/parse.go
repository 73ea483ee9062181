package linkedin

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

const (
	nameSelector     = `h1[class*="break-words"], h1, .text-heading-xlarge`
	headlineSelector = ".text-body-medium.break-words, .pv-top-card--list .text-body-medium, .pv-top-card__occupation"
	locationSelector = ".pv-top-card--list-bullet, .pv-top-card__location, .t-16.t-black--light"
	summarySelector  = "#about .pv-about__summary-text, #about .lt-line-clamp__raw-line, .pv-about__summary-text"
	skillSelector    = ".pv-skill-category-entity__name, .skill-pill, .pv-skill-entity__skill-name"
	educationItems   = "#education .pv-education-entity, .pv-education-entity, .education-section li"
	experienceItems  = ".experience-section .pv-entity__position-group-pager li, .pv-position-entity, " +
		".pv-entity__position-group-item, .pv-profile-section__card-item"
)

// Parse reads a rendered profile page into the normalized schema.
func Parse(html string) (crawler.LinkedInProfile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.LinkedInProfile{}, fmt.Errorf("parse profile html: %w", err)
	}
	profile := crawler.LinkedInProfile{
		Name:        pick(doc.Selection, nameSelector),
		Headline:    pick(doc.Selection, headlineSelector),
		Location:    pick(doc.Selection, locationSelector),
		Summary:     pick(doc.Selection, summarySelector),
		Skills:      []string{},
		Education:   []crawler.Education{},
		Experiences: []crawler.Experience{},
	}

	seen := map[string]bool{}
	doc.Find(skillSelector).Each(func(_ int, s *goquery.Selection) {
		skill := clean(s.Text())
		if skill != "" && !seen[skill] {
			seen[skill] = true
			profile.Skills = append(profile.Skills, skill)
		}
	})

	doc.Find(educationItems).Each(func(_ int, s *goquery.Selection) {
		edu := crawler.Education{
			School: pick(s, "h3, .pv-entity__school-name"),
			Degree: pick(s, ".pv-entity__degree-name"),
			Period: pick(s, ".pv-entity__dates"),
		}
		if edu != (crawler.Education{}) {
			profile.Education = append(profile.Education, edu)
		}
	})

	doc.Find(experienceItems).Each(func(_ int, s *goquery.Selection) {
		exp := crawler.Experience{
			Title:       pick(s, "h3, .t-bold"),
			Company:     pick(s, ".pv-entity__secondary-title, .pv-entity__company-name"),
			Period:      pick(s, ".pv-entity__date-range span:nth-child(2)"),
			Description: pick(s, ".pv-entity__description, .pv-entity__summary"),
		}
		if exp != (crawler.Experience{}) {
			profile.Experiences = append(profile.Experiences, exp)
		}
	})

	root := doc.Selection
	if modal := doc.Find(".pv-contact-info__contact-type").First(); modal.Length() > 0 {
		root = modal
	}
	profile.Contact = crawler.LinkedInContact{
		Email:   pick(root, ".ci-email a"),
		Phone:   pick(root, ".ci-phone span"),
		Website: pick(root, ".ci-websites a"),
	}
	return profile, nil
}

func pick(root *goquery.Selection, selector string) string {
	return clean(root.Find(selector).First().Text())
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
