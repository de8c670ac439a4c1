package session

const (
	feedbackEmpty      = "No session data available for feedback."
	feedbackDefault    = "Session completed with normal emotional patterns."
	feedbackHigh       = "High stress levels detected throughout the session."
	feedbackLow        = "Overall stress levels remained low and manageable."
	feedbackModerate   = "Moderate stress levels observed during the session."
	feedbackDisengaged = "Engagement levels were consistently low - consider taking breaks."
	feedbackEngaged    = "Excellent engagement levels maintained throughout the session."
)

// Feedback returns plain-language observations about a session.
func Feedback(s Stats) []string {
	if s.Count == 0 {
		return []string{feedbackEmpty}
	}

	var out []string
	switch {
	case s.MeanStress > 0.7:
		out = append(out, feedbackHigh)
	case s.MeanStress < 0.3:
		out = append(out, feedbackLow)
	default:
		out = append(out, feedbackModerate)
	}

	switch {
	case s.MeanEngagement < 0.4:
		out = append(out, feedbackDisengaged)
	case s.MeanEngagement > 0.7:
		out = append(out, feedbackEngaged)
	}
	return out
}
