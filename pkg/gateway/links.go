package gateway

import (
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nicktill/damwatch/pkg/attendance"
	"github.com/nicktill/damwatch/pkg/config"
)

// Link is one data file offered by a node listing.
type Link struct {
	NodeID   string `json:"node_id"`
	Href     string `json:"href"`
	Filename string `json:"filename"`
}

// NewLink derives the filename from the last path segment of href.
func NewLink(node, href string) Link {
	return Link{NodeID: node, Href: href, Filename: path.Base(href)}
}

// ParseLinks returns the href of every anchor in an HTML listing that
// points at a CSV or ZIP file, in document order.
func ParseLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && isDataFile(attr.Val) {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return hrefs, nil
}

func isDataFile(href string) bool {
	href = strings.ToLower(href)
	return strings.HasSuffix(href, config.TableExt) || strings.HasSuffix(href, config.ArchiveExt)
}

// SelectLinks keeps the links worth downloading as of now: files whose
// name contains "current", and files named "...-<year>-<month>.<ext>"
// that fall in the current month or the months-1 months before it.
// Names carrying no parsable date are dropped.
func SelectLinks(links []Link, now time.Time, months int) []Link {
	if months < 1 {
		months = 1
	}
	wanted := make(map[attendance.Month]bool, months)
	current := attendance.MonthOf(now)
	for i := 0; i < months; i++ {
		wanted[current.AddMonths(-i)] = true
	}

	var out []Link
	for _, link := range links {
		if strings.Contains(strings.ToLower(link.Filename), config.CurrentMarker) {
			out = append(out, link)
			continue
		}
		m, ok := FileMonth(link.Filename)
		if ok && wanted[m] {
			out = append(out, link)
		}
	}
	return out
}

// FileMonth reads the trailing "-<year>-<month>" token of a filename,
// before its extension.
func FileMonth(filename string) (attendance.Month, bool) {
	parts := strings.Split(filename, "-")
	if len(parts) < 3 {
		return attendance.Month{}, false
	}
	year, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return attendance.Month{}, false
	}
	monthPart, _, _ := strings.Cut(parts[len(parts)-1], ".")
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return attendance.Month{}, false
	}
	return attendance.Month{Year: year, Month: time.Month(month)}, true
}

func sortedNodes[V any](m map[string]V) []string {
	nodes := make([]string, 0, len(m))
	for node := range m {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
