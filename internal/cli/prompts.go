package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// promptForQuery asks for the free-text trading question.
func promptForQuery() (string, error) {
	var query string
	prompt := &survey.Input{
		Message: "What do you want to analyze?",
		Help:    `Free text, e.g. "should I buy gold this week?" or "EUR/USD outlook"`,
	}

	err := survey.AskOne(prompt, &query, survey.WithValidator(func(val interface{}) error {
		if strings.TrimSpace(val.(string)) == "" {
			return fmt.Errorf("query cannot be empty")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(query), nil
}

// promptForBalance asks for an optional account balance override. Empty input
// keeps the configured default.
func promptForBalance(configured float64) (float64, error) {
	var raw string
	prompt := &survey.Input{
		Message: "Account balance for position sizing:",
		Default: strconv.FormatFloat(configured, 'f', -1, 64),
		Help:    "Used to size the position; press Enter to keep the configured value",
	}

	err := survey.AskOne(prompt, &raw, survey.WithValidator(func(val interface{}) error {
		s := strings.TrimSpace(val.(string))
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("enter a number")
		}
		if f <= 0 {
			return fmt.Errorf("balance must be positive")
		}
		return nil
	}))
	if err != nil {
		return 0, err
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return configured, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// promptContinue asks whether to run another analysis.
func promptContinue() (bool, error) {
	again := true
	prompt := &survey.Confirm{
		Message: "Run another analysis?",
		Default: true,
	}
	if err := survey.AskOne(prompt, &again); err != nil {
		return false, err
	}
	return again, nil
}
