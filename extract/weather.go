package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/stadtlab/envcrawl/store"
)

var numericValue = regexp.MustCompile(`\d+\.?\d*`)

// WeatherReport scrapes the current temperature, precipitation and wind
// speed from the configured weather page. The page marks the temperature
// with the "temp cell c3" class and lists the other two values as
// labelled list items.
func (c *Client) WeatherReport(ctx context.Context, url string) (store.WeatherRow, int, error) {
	body, status, err := c.get(ctx, url)
	if err != nil {
		return store.WeatherRow{}, status, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return store.WeatherRow{}, status, fmt.Errorf("parse weather page: %w", err)
	}

	var row store.WeatherRow
	var found int

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "div" && hasClass(n, "temp cell c3"):
				if v, ok := spanValue(n); ok {
					row.Temperature = v
					found++
				}
			case n.Data == "li":
				text := nodeText(n)
				if strings.Contains(text, "Niederschlagsmenge:") {
					if v, ok := spanValue(n); ok {
						row.Precipitation = v
						found++
					}
				} else if strings.Contains(text, "Windstärke:") {
					if v, ok := spanValue(n); ok {
						row.WindSpeed = v
						found++
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if found < 3 {
		return row, status, fmt.Errorf("weather page: found %d of 3 values", found)
	}
	return row, status, nil
}

// spanValue extracts the first numeric value from the first span below n.
func spanValue(n *html.Node) (float64, bool) {
	span := findElement(n, "span")
	if span == nil {
		return 0, false
	}
	match := numericValue.FindString(nodeText(span))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && attr.Val == class {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, name); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
