package settings

import (
	"context"
	"strings"
)

// Settings holds the site-wide display text.
type Settings struct {
	SiteTitle       string `json:"siteTitle"`
	SiteSubtitle    string `json:"siteSubtitle"`
	HeroTitle       string `json:"heroTitle"`
	HeroDescription string `json:"heroDescription"`
	FooterText      string `json:"footerText"`
}

// Defaults are served until an operator edits the settings.
func Defaults() Settings {
	return Settings{
		SiteTitle:       "Campus Directory",
		SiteSubtitle:    "Academic profiles hub",
		HeroTitle:       "Welcome to Campus Directory",
		HeroDescription: "Explore and connect with students, teachers, and staff across our campus. Find experts in various fields and expand your academic network.",
		FooterText:      "© 2024 Campus Directory. All rights reserved.",
	}
}

// Merge overlays the non-blank fields of in onto base.
func Merge(base, in Settings) Settings {
	pick := func(cur *string, v string) {
		if strings.TrimSpace(v) != "" {
			*cur = v
		}
	}
	pick(&base.SiteTitle, in.SiteTitle)
	pick(&base.SiteSubtitle, in.SiteSubtitle)
	pick(&base.HeroTitle, in.HeroTitle)
	pick(&base.HeroDescription, in.HeroDescription)
	pick(&base.FooterText, in.FooterText)
	return base
}

// Service serves settings. Saves are acknowledged and echoed but not kept:
// reads keep returning Defaults.
type Service struct{}

func NewService() *Service { return &Service{} }

func (s *Service) Get(context.Context) Settings { return Defaults() }

// Save returns in merged over the defaults. Nothing is persisted.
func (s *Service) Save(_ context.Context, in Settings) Settings {
	return Merge(Defaults(), in)
}
