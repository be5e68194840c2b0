package extract

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/stadtlab/envcrawl/store"
)

// kbaBaseURL resolves the relative download links on the KBA pages.
const kbaBaseURL = "https://www.kba.de"

// FileURL finds the workbook download link on a KBA publication page:
// the anchor carrying the "c-publication FTxlsx" class. Relative links
// are resolved against the KBA host.
func (c *Client) FileURL(ctx context.Context, pageURL string) (string, int, error) {
	body, status, err := c.get(ctx, pageURL)
	if err != nil {
		return "", status, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", status, fmt.Errorf("parse publication page: %w", err)
	}

	var href string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if href != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "c-publication FTxlsx") {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					href = attr.Val
					return
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if href == "" {
		return "", status, fmt.Errorf("publication page: no workbook link found")
	}
	if strings.HasPrefix(href, "/") {
		href = kbaBaseURL + href
	}
	return href, status, nil
}

// Download fetches a file and writes it atomically to path.
// Returns the number of bytes written and the HTTP status.
func (c *Client) Download(ctx context.Context, url, path string) (int64, int, error) {
	body, status, err := c.get(ctx, url)
	if err != nil {
		return 0, status, err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		return 0, status, fmt.Errorf("write %s: %w", path, err)
	}
	return int64(len(body)), status, nil
}

// Workbook geometry: sheet names, the label column and the value columns
// holding the Berlin row of each table.
const (
	carRegsSheet    = "FZ1.2"
	carRegsLabel    = "BERLIN INSGESAMT"
	newCarRegsSheet = "FZ 8.6"
	newCarRegsLabel = "Berlin"
)

// ReadCarRegistrations parses the yearly stock workbook: the Berlin row
// of sheet FZ1.2, columns F through L by fuel type. "-" cells mean zero.
func ReadCarRegistrations(path string, year int) (store.CarRegistrationRow, error) {
	// Columns F, G, H, I, K, L.
	cells, err := berlinRow(path, carRegsSheet, carRegsLabel, []int{5, 6, 7, 8, 10, 11})
	if err != nil {
		return store.CarRegistrationRow{}, err
	}
	return store.CarRegistrationRow{
		Year:     year,
		Gasoline: cells[0],
		Diesel:   cells[1],
		LPGCNG:   cells[2],
		Hybrid:   cells[3],
		BEV:      cells[4],
		Other:    cells[5],
	}, nil
}

// ReadNewCarRegistrations parses the monthly registrations workbook:
// the Berlin row of sheet FZ 8.6. The separate LPG and CNG columns are
// merged into one value.
func ReadNewCarRegistrations(path string, year, month int) (store.NewCarRegistrationRow, error) {
	// Columns C, G, K, L, M, N, P.
	cells, err := berlinRow(path, newCarRegsSheet, newCarRegsLabel, []int{2, 6, 10, 11, 12, 13, 15})
	if err != nil {
		return store.NewCarRegistrationRow{}, err
	}
	return store.NewCarRegistrationRow{
		Year:     year,
		Month:    month,
		Gasoline: cells[0],
		Diesel:   cells[1],
		LPGCNG:   cells[2] + cells[3],
		BEV:      cells[4],
		Hybrid:   cells[5],
		Other:    cells[6],
	}, nil
}

// berlinRow scans a sheet for the row whose column B holds label and
// returns the requested zero-based columns parsed as counts.
func berlinRow(path, sheet, label string, cols []int) ([]int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}

	for _, row := range rows {
		if len(row) < 2 || strings.TrimSpace(row[1]) != label {
			continue
		}
		result := make([]int, len(cols))
		for i, col := range cols {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			v, err := parseCount(cell)
			if err != nil {
				return nil, fmt.Errorf("sheet %s column %d: %w", sheet, col, err)
			}
			result[i] = v
		}
		return result, nil
	}
	return nil, fmt.Errorf("sheet %s: no row labelled %q", sheet, label)
}

// parseCount reads a registration count cell. Dashes and empty cells
// mean zero; thousands separators are tolerated.
func parseCount(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == "-" {
		return 0, nil
	}
	cleaned := strings.NewReplacer(".", "", ",", "", " ", "", " ", "").Replace(cell)
	v, err := strconv.Atoi(cleaned)
	if err != nil {
		// Some cells carry a float representation.
		f, ferr := strconv.ParseFloat(cell, 64)
		if ferr != nil {
			return 0, fmt.Errorf("parse count %q: %w", cell, err)
		}
		return int(f), nil
	}
	return v, nil
}
