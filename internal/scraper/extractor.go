package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"sjsage522/placereview/internal/browser"
	"sjsage522/placereview/internal/textclean"
	"sjsage522/placereview/pkg/errors"
)

// MinRawTextLength is the length raw review text must exceed to be kept.
const MinRawTextLength = 10

// minFallbackLength is the length a paragraph or line must exceed before
// the fallback text scans accept it.
const minFallbackLength = 20

// dateScanPattern finds a date inside a container's full text. It stays in
// the syntax shared by RE2 and JavaScript; the optional two-digit year on
// the weekday form keeps "23.1.15.일" whole.
const dateScanPattern = `(\d{4}\s*[.\-/]\s*\d{1,2}\s*[.\-/]\s*\d{1,2}|\d{4}년\s*\d{1,2}월\s*\d{1,2}일|\d{1,2}월\s*\d{1,2}일|\d+\s*(?:분|시간|일|주|개월|달|년)\s*전|(?:\d{2}\.)?\d{1,2}\.\d{1,2}\.[월화수목금토일])`

// dateLiterals are accepted as a last resort when no date form matched.
var dateLiterals = []string{"오늘", "어제", "방금"}

// RawRecord is one review as read off the page, before cleaning.
type RawRecord struct {
	Text   string
	Date   string
	Author string
	Rating string
}

// extractJS runs inside the page in a single evaluation. __CONFIG__ is
// replaced with the selector table, chrome patterns and date scan.
const extractJS = `(() => {
	const cfg = __CONFIG__;
	const chrome = cfg.chrome.map(s => new RegExp(s));
	const isChrome = line => chrome.some(re => re.test(line));
	const dateScan = new RegExp(cfg.dateScan);
	const textOf = el => ((el && (el.innerText || el.textContent)) || '').trim();
	const query = (root, sel, all) => {
		try { return all ? root.querySelectorAll(sel) : root.querySelector(sel); } catch (e) { return null; }
	};
	const first = (root, sels) => {
		for (const s of sels) {
			const t = textOf(query(root, s, false));
			if (t) return t;
		}
		return '';
	};
	const usable = t => t.length > cfg.minFallback && !isChrome(t);

	let items = [];
	let matched = '';
	for (const s of cfg.containers) {
		const found = query(document, s, true);
		if (found && found.length > 0) {
			items = Array.from(found);
			matched = s;
			break;
		}
	}

	const records = [];
	for (const item of items) {
		const whole = textOf(item);

		let text = first(item, cfg.text);
		if (!text) {
			for (const s of cfg.paragraphs) {
				for (const el of Array.from(query(item, s, true) || [])) {
					const t = textOf(el);
					if (usable(t)) { text = t; break; }
				}
				if (text) break;
			}
		}
		if (!text) {
			for (const line of whole.split('\n')) {
				const l = line.trim();
				if (usable(l)) { text = l; break; }
			}
		}
		if (text.length <= cfg.minText) continue;

		let date = '';
		const timeEl = query(item, 'time', false);
		if (timeEl) date = textOf(timeEl) || (timeEl.getAttribute('datetime') || '').trim();
		if (!date) date = first(item, cfg.date);
		if (!date) {
			const m = whole.match(dateScan);
			if (m) date = m[0];
		}
		if (!date) date = cfg.literals.find(w => whole.includes(w)) || '';

		records.push({
			text: text,
			date: date,
			author: first(item, cfg.author),
			rating: first(item, cfg.rating),
		});
	}
	return { matched: matched, count: items.length, records: records };
})()`

// Extractor reads review records from the current DOM.
type Extractor struct {
	script string
}

// NewExtractor builds the in-page script for sel.
func NewExtractor(sel SelectorTable) (*Extractor, error) {
	cfg := struct {
		SelectorTable
		Chrome      []string `json:"chrome"`
		DateScan    string   `json:"dateScan"`
		Literals    []string `json:"literals"`
		MinText     int      `json:"minText"`
		MinFallback int      `json:"minFallback"`
	}{sel, textclean.Patterns(), dateScanPattern, dateLiterals, MinRawTextLength, minFallbackLength}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode selector table: %w", err)
	}
	data := strings.TrimSpace(buf.String())
	return &Extractor{script: strings.Replace(extractJS, "__CONFIG__", data, 1)}, nil
}

// Extract evaluates the script once. ErrNoReviewContainer and
// ErrMalformedExtraction mark recoverable anomalies; any other error means
// the page itself failed.
func (e *Extractor) Extract(ctx context.Context, page browser.Page) ([]RawRecord, error) {
	var raw json.RawMessage
	if err := page.Evaluate(ctx, e.script, &raw); err != nil {
		return nil, errors.NewExtraction("extractor", "evaluate review script", err)
	}

	matched, records, err := decodeExtraction(raw)
	if err != nil {
		return nil, err
	}
	if matched == "" {
		return nil, errors.ErrNoReviewContainer
	}
	return records, nil
}

// isAnomaly reports whether an Extract error should be logged and skipped
// rather than failing the scrape.
func isAnomaly(err error) bool {
	return errors.Is(err, errors.ErrNoReviewContainer) || errors.Is(err, errors.ErrMalformedExtraction)
}

// decodeExtraction validates the untyped script result. Items that are not
// objects, or whose text is too short, are dropped.
func decodeExtraction(raw json.RawMessage) (string, []RawRecord, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errors.ErrMalformedExtraction, err)
	}

	matched, _ := top["matched"].(string)

	var list []any
	switch v := top["records"].(type) {
	case nil:
	case []any:
		list = v
	default:
		return "", nil, fmt.Errorf("%w: records is %T", errors.ErrMalformedExtraction, v)
	}

	records := make([]RawRecord, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := RawRecord{
			Text:   stringField(obj, "text"),
			Date:   stringField(obj, "date"),
			Author: stringField(obj, "author"),
			Rating: stringField(obj, "rating"),
		}
		if utf8.RuneCountInString(rec.Text) <= MinRawTextLength {
			continue
		}
		records = append(records, rec)
	}
	return matched, records, nil
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprint(v))
	default:
		return ""
	}
}
