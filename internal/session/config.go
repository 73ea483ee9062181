package session

import "time"

// Config controls the browser and the login flow.
type Config struct {
	Headless         bool
	ChromePath       string
	UserAgent        string
	LoginURL         string
	Email            string
	Password         string
	LoginMaxAttempts int
	KeepOpen         bool
	TypeMinDelay     time.Duration
	TypeMaxDelay     time.Duration
	NavTimeout       time.Duration
}

const (
	viewportWidth  = 1366
	viewportHeight = 768
	defaultLogin   = "https://www.linkedin.com/login"
	loggedInMarker = `input[role="combobox"]`
)

func (c Config) withDefaults() Config {
	if c.LoginMaxAttempts <= 0 {
		c.LoginMaxAttempts = 1
	}
	if c.LoginURL == "" {
		c.LoginURL = defaultLogin
	}
	if c.TypeMinDelay <= 0 {
		c.TypeMinDelay = 100 * time.Millisecond
	}
	if c.TypeMaxDelay < c.TypeMinDelay {
		c.TypeMaxDelay = c.TypeMinDelay
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	return c
}

// blockedURLs are dropped by the browser to cut noise and tracking.
var blockedURLs = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.mp4", "*.webm", "*.mp3",
	"*.woff", "*.woff2", "*.ttf",
	"wss://*",
	"*doubleclick*", "*google-analytics*", "*googlesyndication*",
	"*adsystem*", "*adservice*", "*tracking*", "*analytics*",
}

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});`
