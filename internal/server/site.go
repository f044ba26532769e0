package server

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Site holds the static content shared by every page.
type Site struct {
	Name         string
	Initials     string
	Tagline      string
	Hero         string
	About        string
	Email        string
	ResponseNote string
	Socials      []SocialLink
	Members      []Member
	Highlights   []Highlight
}

// SocialLink is one footer and contact page link.
type SocialLink struct {
	Label string
	URL   string
}

// Member is one entry of the home page roster.
type Member struct {
	Name     string
	Role     string
	ImageURL string
}

// Highlight is a home page event teaser. Static highlights are shown until the
// events table has rows.
type Highlight struct {
	Title       string
	DateLabel   string
	Description string
}

// DefaultSite returns the club's standing content under the given name.
func DefaultSite(name string) Site {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "EyeQ Club"
	}
	return Site{
		Name:     name,
		Initials: initials(name),
		Tagline:  "Vision, Innovation, Excellence",
		Hero:     "Where vision meets innovation. Join a community of creators building the future.",
		About: name + " is more than just a tech community. We are a collective of innovators, " +
			"creators and problem solvers passionate about building meaningful solutions. " +
			"Through collaborative projects, workshops and events, we empower our members to " +
			"turn their ideas into reality and make a lasting impact.",
		Email:        "contact@eyeqclub.com",
		ResponseNote: "We typically respond to inquiries within 24-48 hours during weekdays.",
		Socials: []SocialLink{
			{Label: "Instagram", URL: "https://instagram.com"},
			{Label: "GitHub", URL: "https://github.com"},
			{Label: "LinkedIn", URL: "https://linkedin.com"},
		},
		Members: []Member{
			{Name: "Sarah Chen", Role: "President", ImageURL: avatarURL("Sarah")},
			{Name: "Marcus Johnson", Role: "Vice President", ImageURL: avatarURL("Marcus")},
			{Name: "Aisha Patel", Role: "Technical Lead", ImageURL: avatarURL("Aisha")},
			{Name: "David Kim", Role: "Events Coordinator", ImageURL: avatarURL("David")},
			{Name: "Emma Rodriguez", Role: "Communications", ImageURL: avatarURL("Emma")},
		},
		Highlights: []Highlight{
			{Title: "Web Development Workshop", DateLabel: "March 15, 2025", Description: "Learn modern web development with React and TypeScript"},
			{Title: "Hackathon 2025", DateLabel: "April 20-21, 2025", Description: "24-hour coding challenge to build innovative solutions"},
			{Title: "Tech Talk Series", DateLabel: "Every Friday", Description: "Weekly sessions with industry experts and alumni"},
		},
	}
}

func avatarURL(seed string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + seed
}

func initials(name string) string {
	var letters []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsUpper(r) {
				letters = append(letters, r)
			}
		}
		if len(letters) >= 2 {
			break
		}
	}
	if len(letters) == 0 {
		first, _ := utf8.DecodeRuneInString(strings.TrimSpace(name))
		return string(unicode.ToUpper(first))
	}
	return string(letters)
}
