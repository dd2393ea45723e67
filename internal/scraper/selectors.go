package scraper

// SelectorTable lists CSS selectors per field, most specific first. The
// platform rotates its generated class names, so every field carries
// fallbacks down to structural selectors.
type SelectorTable struct {
	Containers []string `json:"containers"`
	Text       []string `json:"text"`
	Paragraphs []string `json:"paragraphs"`
	Date       []string `json:"date"`
	Author     []string `json:"author"`
	Rating     []string `json:"rating"`
	LoadMore   []string `json:"-"`
	PlaceName  []string `json:"-"`
}

// DefaultSelectors targets the mobile visitor-review feed.
var DefaultSelectors = SelectorTable{
	Containers: []string{
		"#_review_list > li",
		"li.place_apply_pui",
		"li.pui__X35jYm",
		"li.YeINN",
		"li.owAeM",
		"ul[class*='review'] > li",
		"div[class*='review_list'] li",
		"[class*='review']",
	},
	Text: []string{
		".pui__vn15t2 a",
		".pui__vn15t2",
		"a.pui__xtsQN-",
		".zPfVt",
		".ZZ4OK",
		"div[class*='review_text']",
	},
	Paragraphs: []string{
		"p",
		"span[aria-label]",
		"span[class*='text']",
		"span[class*='desc']",
	},
	Date: []string{
		".pui__QKE5Pr time",
		".pui__gfuUIT time",
		".CKUdu time",
		"time",
		"span[class*='date']",
	},
	Author: []string{
		".pui__NMi-Dp",
		".sBWyy",
		".YwgDA",
		"span[class*='nickname']",
		"div[class*='name']",
	},
	Rating: []string{
		".pui__6aArXt",
		".YWJhm",
		"span[class*='rating']",
		"em[class*='score']",
	},
	LoadMore: []string{
		"a.fvwqf",
		".lfH3O a",
		"div.NSTUp a",
		"a[class*='more']",
		"button[class*='more']",
	},
	PlaceName: []string{
		"#_title span.GHAhO",
		"span.GHAhO",
		"span.Fc1rA",
		"#_title > div > span:first-child",
		"h1",
	},
}
