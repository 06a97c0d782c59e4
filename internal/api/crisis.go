package api

// CrisisContact is one crisis support resource.
type CrisisContact struct {
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description"`
}

// CrisisResources is the static set of crisis contacts served over the API,
// the MCP resource, and the CLI. Always available, no model involved.
var CrisisResources = []CrisisContact{
	{
		Name:        "Emergency Services",
		Phone:       "112",
		Description: "India's national emergency number, available 24/7",
	},
	{
		Name:        "iCall (Tata Institute of Social Sciences)",
		Phone:       "+91 9152987821",
		Email:       "icall@tiss.edu",
		Description: "Free, confidential mental health support via phone, email, and online chat",
	},
	{
		Name:        "AASRA",
		Phone:       "+91 9820466726",
		Description: "24/7 helpline offering emotional support to individuals in distress",
	},
	{
		Name:        "Fortis Mental Health Helpline",
		Phone:       "+91 8376804102",
		Description: "General psychological support",
	},
	{
		Name:        "Suicide Prevention Lifeline",
		URL:         "https://suicidepreventionlifeline.org",
		Description: "Online chat support",
	},
}
