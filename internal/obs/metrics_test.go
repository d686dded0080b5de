package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/metrics":                "/metrics",
		"/v1/assistant/jobs/01HX": "/v1/assistant/jobs/:id",
		"/v1/assistant/jobs/a/b":  "/v1/assistant/jobs/a/b",
		"/v1/assistant/query":     "/v1/assistant/query",
		"/v1/uploads":             "/v1/uploads",
		"/v1/uploads?token=abc":   "/v1/uploads",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
