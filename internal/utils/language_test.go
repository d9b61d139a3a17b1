package utils

import (
	"testing"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Russian text",
			input:    "Здравствуйте, не работает интернет",
			expected: "ru",
		},
		{
			name:     "Kazakh text",
			input:    "Сәлеметсіз бе, интернет қосылмайды",
			expected: "kk",
		},
		{
			name:     "English text",
			input:    "Hello, my router is broken",
			expected: "en",
		},
		{
			name:     "Empty text",
			input:    "",
			expected: "ru",
		},
		{
			name:     "Digits only",
			input:    "8 800 080 8800",
			expected: "ru",
		},
		{
			name:     "Russian with latin brand names",
			input:    "Не работает Wi-Fi на роутере",
			expected: "ru",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectLanguage(tt.input)
			if result.Code != tt.expected {
				t.Errorf("DetectLanguage(%q) = %v, expected %s", tt.input, result.Code, tt.expected)
			}
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		requested string
		text      string
		expected  string
	}{
		{requested: "ru", text: "Hello", expected: "ru"},
		{requested: "KZ", text: "Привет", expected: "kk"},
		{requested: "kk", text: "Привет", expected: "kk"},
		{requested: "en", text: "Привет", expected: "en"},
		{requested: "", text: "Hello there", expected: "en"},
		{requested: "de", text: "Привет", expected: "ru"},
	}

	for _, tt := range tests {
		t.Run(tt.requested+"/"+tt.text, func(t *testing.T) {
			result := ResolveLanguage(tt.requested, tt.text)
			if result != tt.expected {
				t.Errorf("ResolveLanguage(%q, %q) = %q, expected %q", tt.requested, tt.text, result, tt.expected)
			}
		})
	}
}
