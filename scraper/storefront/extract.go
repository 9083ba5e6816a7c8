package storefront

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"grocery-tracker/models"
	"grocery-tracker/services"
	"grocery-tracker/utils"
)

// ErrNoIdentity marks a listing element without a resolvable product id.
// Such elements cannot be tracked and are discarded, not treated as page
// failures.
var ErrNoIdentity = errors.New("listing has no resolvable product id")

var quoteRe = regexp.MustCompile(`["']`)

// CategorySlug derives the category name from a category URL, e.g.
// "https://shop.example.de/c/obst-gemuese" → "obst-gemuese".
func CategorySlug(categoryURL string) string {
	trimmed := strings.TrimRight(categoryURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Page is the parsed form of one category page.
type Page struct {
	Listings []models.ListingRecord
	// LastPage is the highest page number advertised by the pagination
	// control, or 0 when the page carries no pagination.
	LastPage int
}

// ParsePage statically parses a category page body. Every <article> counts
// towards the item total, including elements that end up discarded or
// skipped.
func ParsePage(body []byte, slug, storeName, date string, counters *utils.Counters, logger *utils.Logger) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	page := &Page{LastPage: parseLastPage(doc)}
	for _, article := range findAll(doc, atom.Article) {
		counters.AddItems(1)
		rec, err := ExtractListing(article, slug, storeName, date)
		if errors.Is(err, ErrNoIdentity) {
			logger.Debug("discarding untrackable listing in %s", slug)
			continue
		}
		if err != nil {
			logger.Warn("skipping listing in %s: %v", slug, err)
			continue
		}
		page.Listings = append(page.Listings, rec)
	}
	return page, nil
}

// ExtractListing maps one <article> element to a ListingRecord.
func ExtractListing(article *html.Node, slug, storeName, date string) (models.ListingRecord, error) {
	var rec models.ListingRecord

	id, ok := productID(article)
	if !ok {
		return rec, ErrNoIdentity
	}

	name := ""
	if n := findFirstClass(article, "LinesEllipsis"); n != nil {
		name = strings.TrimSpace(quoteRe.ReplaceAllString(text(n), ""))
	}

	price, onOffer, err := listingPrice(article)
	if err != nil {
		return rec, err
	}

	quantity := ""
	if n := findFirstClass(article, "search-service-productGrammage"); n != nil {
		quantity = text(n)
	}
	amount, unit := services.NormalizeQuantity(quantity)

	rec = models.ListingRecord{
		ProductID:    id,
		Name:         name,
		Amount:       amount,
		Unit:         unit,
		ListedPrice:  price,
		IsOnOffer:    onOffer,
		HasBioLabel:  findFirstClass(article, "organicBadge") != nil,
		CategorySlug: slug,
		StoreName:    storeName,
		Date:         date,
	}
	return rec, nil
}

// productID resolves the identity attribute: the meso-data element first,
// then the first input's form value. Only positive integers are trackable.
func productID(article *html.Node) (int64, bool) {
	if n := findFirstTag(article, "meso-data"); n != nil {
		if id, err := strconv.ParseInt(attr(n, "data-productid"), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	if n := findAllTag(article, "input"); len(n) > 0 {
		if id, err := strconv.ParseInt(attr(n[0], "value"), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// listingPrice prefers the regular price field and falls back to the offer
// price, which marks the listing as on offer. Neither present is a hard
// extraction failure for the element.
func listingPrice(article *html.Node) (float64, bool, error) {
	if n := findFirstClass(article, "search-service-productPrice"); n != nil {
		price, err := parsePrice(text(n))
		return price, false, err
	}
	if n := findFirstClass(article, "search-service-productOfferPrice"); n != nil {
		price, err := parsePrice(text(n))
		return price, true, err
	}
	return 0, false, errors.New("listing has no price field")
}

// parsePrice parses "1,99 €" style values: comma decimal separator, trailing
// currency symbol.
func parsePrice(raw string) (float64, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, "€", ""), ",", "."))
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return price, nil
}

// parseLastPage reads the pagination control; the last pagination button
// carries the highest page number. 0 means no pagination control.
func parseLastPage(doc *html.Node) int {
	var last int
	for _, n := range findAll(doc, atom.Button) {
		if !hasClass(n, "paginationPage") {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(text(n))); err == nil {
			last = v
		}
	}
	return last
}

// Minimal node-walking helpers over the x/net/html tree.

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.DataAtom == a {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// findAllTag matches by tag name, for elements outside the atom table such
// as custom elements.
func findAllTag(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirstTag(n *html.Node, tag string) *html.Node {
	if all := findAllTag(n, tag); len(all) > 0 {
		return all[0]
	}
	return nil
}

func findFirstClass(n *html.Node, class string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if found != nil {
			return
		}
		if node.Type == html.ElementNode && nodeHasClass(node, class) {
			found = node
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return found
}

func hasClass(n *html.Node, class string) bool {
	return nodeHasClass(n, class)
}

func nodeHasClass(n *html.Node, class string) bool {
	for _, name := range strings.Fields(attr(n, "class")) {
		if name == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
