// Package canvas generates JSON Canvas documents (https://jsoncanvas.org/)
// visualizing a note and its relationships. Generation is pure and
// deterministic; the artifact is fully regenerated on each call.
package canvas

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fivarsson/triage/internal/domain"
)

// Node is a positioned canvas element. Type is one of text, file, link or
// group; the matching payload field is set.
type Node struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Color  string `json:"color,omitempty"`
	Text   string `json:"text,omitempty"`
	File   string `json:"file,omitempty"`
	URL    string `json:"url,omitempty"`
	Label  string `json:"label,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	ToNode   string `json:"toNode"`
	Label    string `json:"label,omitempty"`
	Color    string `json:"color,omitempty"`
}

// Canvas is the top-level document.
type Canvas struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Related is a note connected to the central record.
type Related struct {
	Title        string
	Path         string
	Type         string
	Relationship string
}

// typeColors maps record types to the canvas palette.
var typeColors = map[string]string{
	"task":     "1", // red
	"meeting":  "2", // orange
	"idea":     "3", // yellow
	"note":     "4", // green
	"decision": "5", // cyan
	"journal":  "6", // purple
	"invoice":  "1",
	"receipt":  "2",
	"other":    "4",
}

const defaultColor = "4"

const relatedRadius = 500

// Color returns the palette color for a record type, falling back to the
// default for unknown types.
func Color(recType string) string {
	if c, ok := typeColors[recType]; ok {
		return c
	}
	return defaultColor
}

// NoteCanvas builds the canvas for a record: the note file at the center,
// related notes on a circle around it, and text nodes for the extracted
// people, dates and action items at fixed offsets.
func NoteCanvas(rec *domain.Record, notePath string, related []Related) *Canvas {
	c := &Canvas{Nodes: []Node{}, Edges: []Edge{}}

	c.Nodes = append(c.Nodes, fileNode("main", notePath, 0, 0, 400, 300, Color(rec.Type)))

	// Related notes on a circle, first at angle 0.
	step := 2 * math.Pi / math.Max(float64(len(related)), 1)
	angle := 0.0
	for i, rel := range related {
		id := fmt.Sprintf("related-%d", i+1)
		x := int(math.Round(math.Cos(angle) * relatedRadius))
		y := int(math.Round(math.Sin(angle) * relatedRadius))
		c.Nodes = append(c.Nodes, fileNode(id, rel.Path, x, y, 300, 200, Color(rel.Type)))
		c.Edges = append(c.Edges, edge("main", id, rel.Relationship))
		angle += step
	}

	if ed := rec.ExtractedData; ed != nil {
		if len(ed.People) > 0 {
			links := make([]string, len(ed.People))
			for i, p := range ed.People {
				links[i] = "- [[" + p + "]]"
			}
			c.Nodes = append(c.Nodes, textNode("people",
				"**People**\n\n"+strings.Join(links, "\n"), -600, -200, 250, 150, "5"))
			c.Edges = append(c.Edges, edge("main", "people", "involves"))
		}

		if len(ed.Dates) > 0 {
			c.Nodes = append(c.Nodes, textNode("dates",
				"**Dates**\n\n"+strings.Join(ed.Dates, "\n"), 600, -200, 200, 120, "3"))
			c.Edges = append(c.Edges, edge("main", "dates", "scheduled"))
		}

		if len(ed.ActionItems) > 0 {
			items := make([]string, len(ed.ActionItems))
			for i, item := range ed.ActionItems {
				items[i] = "- [ ] " + item
			}
			c.Nodes = append(c.Nodes, textNode("tasks",
				"**Action Items**\n\n"+strings.Join(items, "\n"), -600, 200, 300, 200, "1"))
			c.Edges = append(c.Edges, edge("main", "tasks", "requires"))
		}
	}

	return c
}

// JSON renders the canvas document.
func (c *Canvas) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal canvas: %w", err)
	}
	return data, nil
}

func fileNode(id, file string, x, y, width, height int, color string) Node {
	return Node{ID: id, Type: "file", File: file, X: x, Y: y, Width: width, Height: height, Color: color}
}

func textNode(id, text string, x, y, width, height int, color string) Node {
	return Node{ID: id, Type: "text", Text: text, X: x, Y: y, Width: width, Height: height, Color: color}
}

func edge(from, to, label string) Edge {
	return Edge{ID: from + "-" + to, FromNode: from, ToNode: to, Label: label}
}
