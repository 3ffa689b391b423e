// Package scanner streams article pages out of a MediaWiki XML dump.
package scanner

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// Config controls Scanner behavior.
type Config struct {
	// Variants are the tags counted in body text. Defaults to corpus.KnownVariants.
	Variants []corpus.Variant
	// RequireTimestamp withholds pages whose revision has no timestamp.
	RequireTimestamp bool
	// OnPage, when set, is called once per </page> with the page's eligibility.
	OnPage func(eligible bool)
	Logger *zap.Logger
}

// Scanner walks a dump once, emitting eligible pages in document order.
type Scanner struct {
	r      io.Reader
	cfg    Config
	logger *zap.Logger
}

// New builds a Scanner over r.
func New(r io.Reader, cfg Config) *Scanner {
	if len(cfg.Variants) == 0 {
		cfg.Variants = corpus.KnownVariants
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{r: r, cfg: cfg, logger: logger.Named("scanner")}
}

// idState tracks which of the two <id> elements a page is waiting for.
type idState int

const (
	awaitingPageID idState = iota
	awaitingRevisionID
	idsResolved
)

type field int

const (
	fieldNone field = iota
	fieldNS
	fieldPageID
	fieldTitle
	fieldRedirect
	fieldRevision
	fieldRevisionID
	fieldTimestamp
	fieldText
)

type pageState struct {
	eligible     bool
	ids          idState
	pageID       int64
	revisionID   int64
	title        string
	timestamp    time.Time
	hasTimestamp bool
	body         string
}

func (p *pageState) emittable(requireTimestamp bool) bool {
	if !p.eligible || p.ids != idsResolved || strings.TrimSpace(p.title) == "" {
		return false
	}
	return p.hasTimestamp || !requireTimestamp
}

func (p *pageState) raw() corpus.RawPage {
	return corpus.RawPage{
		PageID:     p.pageID,
		RevisionID: p.revisionID,
		Timestamp:  p.timestamp,
		Title:      p.title,
		Body:       p.body,
	}
}

// Scan reads the whole dump, calling fn for every eligible page. The
// returned Summary is valid even when an error aborts the scan part way.
// Malformed XML yields an error wrapping corpus.ErrMalformedDump.
func (s *Scanner) Scan(ctx context.Context, fn func(corpus.RawPage) error) (corpus.Summary, error) {
	summary := corpus.Summary{Variants: corpus.NewVariantCounters(s.cfg.Variants)}
	dec := xml.NewDecoder(s.r)

	var (
		path         []string
		pageDepth    = -1
		page         *pageState
		capture      = fieldNone
		captureDepth int
		text         strings.Builder
	)
	malformed := func(err error) error {
		return fmt.Errorf("%w at offset %d: %w", corpus.ErrMalformedDump, dec.InputOffset(), err)
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, malformed(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			if t.Name.Local == "page" && page == nil {
				if err := ctx.Err(); err != nil {
					return summary, fmt.Errorf("scan canceled: %w", err)
				}
				page = &pageState{eligible: true}
				pageDepth = len(path) - 1
				continue
			}
			if page == nil || capture != fieldNone {
				continue
			}
			f := classify(path, pageDepth)
			switch f {
			case fieldRedirect:
				page.eligible = false
			case fieldRevision:
				if page.ids == idsResolved {
					page.ids = awaitingRevisionID
				}
				page.hasTimestamp = false
				page.timestamp = time.Time{}
				page.body = ""
			case fieldPageID:
				if page.ids == awaitingPageID {
					capture, captureDepth = f, len(path)
					text.Reset()
				}
			case fieldRevisionID:
				if page.ids == awaitingRevisionID {
					capture, captureDepth = f, len(path)
					text.Reset()
				}
			case fieldNS, fieldTitle, fieldTimestamp, fieldText:
				capture, captureDepth = f, len(path)
				text.Reset()
			}

		case xml.CharData:
			if capture != fieldNone {
				text.Write(t)
			}

		case xml.EndElement:
			if capture != fieldNone && len(path) == captureDepth {
				if err := s.assign(page, capture, text.String(), summary.Variants); err != nil {
					return summary, malformed(err)
				}
				capture = fieldNone
			}
			if page != nil && len(path)-1 == pageDepth && t.Name.Local == "page" {
				if err := s.finishPage(page, &summary, fn); err != nil {
					return summary, err
				}
				page, pageDepth = nil, -1
			}
			path = path[:len(path)-1]
		}
	}

	if page != nil {
		return summary, malformed(io.ErrUnexpectedEOF)
	}
	return summary, nil
}

// classify maps an element path to the page field it carries. Only
// page/{ns,id,title,redirect,revision} and page/revision/{id,timestamp,text}
// are recognized, so nested ids such as contributor/id are ignored.
func classify(path []string, pageDepth int) field {
	rel := path[pageDepth+1:]
	switch len(rel) {
	case 1:
		switch rel[0] {
		case "ns":
			return fieldNS
		case "id":
			return fieldPageID
		case "title":
			return fieldTitle
		case "redirect":
			return fieldRedirect
		case "revision":
			return fieldRevision
		}
	case 2:
		if rel[0] != "revision" {
			return fieldNone
		}
		switch rel[1] {
		case "id":
			return fieldRevisionID
		case "timestamp":
			return fieldTimestamp
		case "text":
			return fieldText
		}
	}
	return fieldNone
}

func (s *Scanner) assign(page *pageState, f field, value string, variants corpus.VariantCounters) error {
	switch f {
	case fieldNS:
		if strings.TrimSpace(value) != "0" {
			page.eligible = false
		}
	case fieldPageID:
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("parse page id %q: %w", value, err)
		}
		// Ids must be positive; anything else leaves the page unresolved.
		if id <= 0 {
			return nil
		}
		page.pageID = id
		page.ids = awaitingRevisionID
	case fieldRevisionID:
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("parse revision id %q: %w", value, err)
		}
		if id <= 0 {
			return nil
		}
		page.revisionID = id
		page.ids = idsResolved
	case fieldTitle:
		page.title = value
	case fieldTimestamp:
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", value, err)
		}
		page.timestamp = ts.UTC()
		page.hasTimestamp = true
	case fieldText:
		page.body = value
		countVariants(value, s.cfg.Variants, variants)
	}
	return nil
}

func (s *Scanner) finishPage(page *pageState, summary *corpus.Summary, fn func(corpus.RawPage) error) error {
	summary.TotalPages++
	if page.eligible {
		summary.Articles++
	}
	if s.cfg.OnPage != nil {
		s.cfg.OnPage(page.eligible)
	}
	if !page.emittable(s.cfg.RequireTimestamp) {
		if page.eligible {
			s.logger.Debug("skipping unresolved article",
				zap.Int64("page_id", page.pageID),
				zap.String("title", page.title),
			)
		}
		return nil
	}
	if err := fn(page.raw()); err != nil {
		return fmt.Errorf("emit page %d: %w", page.pageID, err)
	}
	return nil
}

// countVariants bumps each tag referenced as "tag:" somewhere in body.
func countVariants(body string, tags []corpus.Variant, counters corpus.VariantCounters) {
	for _, tag := range tags {
		if strings.Contains(body, string(tag)+":") {
			counters[tag]++
		}
	}
}

// CountPages counts <page> elements without decoding their contents.
func CountPages(ctx context.Context, r io.Reader) (int, error) {
	dec := xml.NewDecoder(r)
	count := 0
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("%w at offset %d: %w", corpus.ErrMalformedDump, dec.InputOffset(), err)
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "page" {
			count++
			if count%10000 == 0 {
				if err := ctx.Err(); err != nil {
					return count, fmt.Errorf("count canceled: %w", err)
				}
			}
		}
	}
}
