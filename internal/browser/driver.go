// Package browser defines the boundary to the external browser-automation
// driver. The engine never talks to a real browser directly; it consumes
// snapshots and issues actions through the Driver interface, which keeps the
// antibot-evasion mechanics opaque and the engine testable with a fake.
package browser

import "context"

// Driver is the external browser automation collaborator. Both calls block
// until the page has settled and return the freshly rendered snapshot.
type Driver interface {
	// Navigate loads a URL and returns the rendered page.
	Navigate(ctx context.Context, url string) (*Snapshot, error)
	// Act fills or clicks the element addressed by ref. An empty value
	// means a plain click.
	Act(ctx context.Context, ref, value string) (*Snapshot, error)
}

// Reloginer is an optional Driver capability: re-establish the authenticated
// session after an auth-loss signal. The session controller invokes it at
// most once per attempt.
type Reloginer interface {
	Relogin(ctx context.Context) error
}

// Snapshot is a structural capture of the currently rendered page: a tree of
// labeled elements. Drivers are expected to resolve label associations and
// group radio inputs before handing the snapshot over.
type Snapshot struct {
	URL      string    `json:"url"`
	Title    string    `json:"title,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// Element is one node in the snapshot tree.
type Element struct {
	// Ref is a driver-stable handle used for subsequent Act calls.
	Ref string `json:"ref,omitempty"`
	// Tag is the element tag: input, textarea, select, button, a, captcha.
	Tag string `json:"tag"`
	// Type is the input type attribute where applicable: text, number,
	// radio, checkbox, file.
	Type string `json:"type,omitempty"`
	// Label is the associated label text, already resolved by the driver.
	Label string `json:"label,omitempty"`
	// Options lists choice labels for selects and grouped radio inputs.
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required,omitempty"`
	// Text is the visible text for buttons, links and markers.
	Text string `json:"text,omitempty"`
	// Href is the link target for anchors.
	Href     string    `json:"href,omitempty"`
	Children []Element `json:"children,omitempty"`
}

// Walk visits every element in the snapshot depth-first until fn returns
// false.
func (s *Snapshot) Walk(fn func(Element) bool) {
	walk(s.Elements, fn)
}

func walk(elems []Element, fn func(Element) bool) bool {
	for _, e := range elems {
		if !fn(e) {
			return false
		}
		if !walk(e.Children, fn) {
			return false
		}
	}
	return true
}
