// Package variants implements the variant worker: it derives a fixed catalog
// of platform-sized promotional images from one base image, persists each,
// and performs the terminal manifest merge that may complete the campaign.
package variants

// Spec is one entry of the platform catalog: a platform tag and the target
// canvas dimensions in pixels.
type Spec struct {
	Platform string
	Width    int
	Height   int
}

// catalog is the fixed set of social platform sizes, rendered in this order.
var catalog = []Spec{
	{Platform: "instagram-square", Width: 1080, Height: 1080},
	{Platform: "instagram-story", Width: 1080, Height: 1920},
	{Platform: "facebook-feed", Width: 1200, Height: 630},
	{Platform: "twitter-card", Width: 1200, Height: 675},
	{Platform: "linkedin-post", Width: 1200, Height: 627},
}

// Catalog returns the platform catalog.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}
