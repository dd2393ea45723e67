package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/internal/model"
	"sjsage522/placereview/internal/scraper"
	"sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/cache"
	"sjsage522/placereview/services/store"
	"sjsage522/placereview/services/worker"
)

const dateLayout = "2006-01-02"

// jobFlags are shared by enqueue and scrape
type jobFlags struct {
	place string
	mode  string
	limit int
	start string
	end   string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.place, "place", "", "Place id or Naver place URL")
	cmd.Flags().StringVar(&f.mode, "mode", string(model.ModeByCount), "by-count, since-date or date-range")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Number of reviews to collect in by-count mode")
	cmd.Flags().StringVar(&f.start, "start", "", "Start date (YYYY-MM-DD) for date modes")
	cmd.Flags().StringVar(&f.end, "end", "", "End date (YYYY-MM-DD) for date-range mode")
	cmd.MarkFlagRequired("place")
}

// spec turns flags into a validated job spec. Dates are local midnights.
func (f *jobFlags) spec() (worker.JobSpec, error) {
	var spec worker.JobSpec

	placeID, err := helpers.ExtractPlaceID(f.place)
	if err != nil {
		return spec, errors.NewValidation("cli", fmt.Sprintf("--place %q: %v", f.place, err))
	}
	mode, err := model.ParseMode(f.mode)
	if err != nil {
		return spec, errors.NewValidation("cli", err.Error())
	}
	spec = worker.JobSpec{PlaceID: placeID, Mode: mode}

	switch mode {
	case model.ModeByCount:
		spec.LimitCount = f.limit
	case model.ModeSinceDate, model.ModeDateRange:
		if spec.StartDate, err = parseDateFlag("start", f.start); err != nil {
			return spec, err
		}
		if mode == model.ModeDateRange {
			if spec.EndDate, err = parseDateFlag("end", f.end); err != nil {
				return spec, err
			}
		}
	}
	return spec, spec.Validate()
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return nil, errors.NewValidation("cli", fmt.Sprintf("--%s must be YYYY-MM-DD, got %q", name, value))
	}
	return &t, nil
}

var enqueueFlags jobFlags

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create a scrape job and publish it to the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := enqueueFlags.spec()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeServices(ctx, cfg, withStore|withQueue|withCache)
		if err != nil {
			return err
		}
		defer deps.Cleanup()

		job, err := worker.NewSubmitter(deps.Store, deps.Queue, deps.Progress).Submit(ctx, spec)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), job.ID)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry JOB_ID",
	Short: "Submit a new job with the parameters of an existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeServices(ctx, cfg, withStore|withQueue|withCache)
		if err != nil {
			return err
		}
		defer deps.Cleanup()

		job, err := worker.NewSubmitter(deps.Store, deps.Queue, deps.Progress).Retry(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), job.ID)
		return nil
	},
}

var showReviews bool

// statusReport is what the status command prints
type statusReport struct {
	cache.JobSnapshot
	Sentiments map[string]int `json:"sentiments,omitempty"`
	Reviews    []reviewReport `json:"reviews,omitempty"`
}

type reviewReport struct {
	Text      string         `json:"text"`
	Date      string         `json:"date"`
	Author    string         `json:"author,omitempty"`
	Sentiment string         `json:"sentiment,omitempty"`
	Aspects   []store.Aspect `json:"aspects,omitempty"`
	Keywords  []string       `json:"keywords,omitempty"`
	Summary   string         `json:"summary,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show a job's status and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeServices(ctx, cfg, withStore|withCache)
		if err != nil {
			return err
		}
		defer deps.Cleanup()

		snap, err := worker.NewSubmitter(deps.Store, nil, deps.Progress).Status(ctx, args[0])
		if err != nil {
			return err
		}

		report := statusReport{JobSnapshot: snap}
		if snap.Status == string(store.StatusCompleted) {
			if report.Sentiments, err = deps.Store.SentimentSummary(ctx, snap.JobID); err != nil {
				return err
			}
		}
		if showReviews {
			if report.Reviews, err = collectReviews(ctx, deps.Store, snap.JobID); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func collectReviews(ctx context.Context, st store.Store, jobID string) ([]reviewReport, error) {
	reviews, err := st.ListReviews(ctx, jobID)
	if err != nil {
		return nil, err
	}
	analyses, err := st.ListAnalyses(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return joinAnalyses(reviews, analyses), nil
}

// joinAnalyses pairs reviews with their analyses; reviews whose analysis
// failed are reported without sentiment
func joinAnalyses(reviews []store.Review, analyses []store.Analysis) []reviewReport {
	byReview := make(map[int64]store.Analysis, len(analyses))
	for _, a := range analyses {
		byReview[a.ReviewID] = a
	}

	out := make([]reviewReport, 0, len(reviews))
	for _, r := range reviews {
		rep := reviewReport{Text: r.Text, Date: r.ReviewDate.Format(dateLayout), Author: r.Author}
		if a, ok := byReview[r.ID]; ok {
			rep.Sentiment = a.Sentiment
			rep.Aspects = a.Aspects
			rep.Keywords = a.Keywords
			rep.Summary = a.Summary
		}
		out = append(out, rep)
	}
	return out
}

var scrapeFlags jobFlags

// scrapeOutput is the JSON printed by the scrape command
type scrapeOutput struct {
	PlaceID    string          `json:"placeId"`
	PlaceName  string          `json:"placeName"`
	Collected  int             `json:"collected"`
	StopReason string          `json:"stopReason"`
	Reviews    []scrapedReview `json:"reviews"`
}

type scrapedReview struct {
	Text   string `json:"text"`
	Date   string `json:"date,omitempty"`
	Author string `json:"author,omitempty"`
	Rating string `json:"rating,omitempty"`
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape in the foreground and print the reviews as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := scrapeFlags.spec()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeServices(ctx, cfg, withBrowser)
		if err != nil {
			return err
		}
		defer deps.Cleanup()

		opts := scraper.Options{
			PlaceID:    spec.PlaceID,
			Mode:       spec.Mode,
			LimitCount: spec.LimitCount,
			OnProgress: func(p scraper.Progress) {
				fmt.Fprintf(os.Stderr, "iteration %d: %d reviews\n", p.Iteration, p.Collected)
			},
		}
		if spec.StartDate != nil {
			opts.StartDate = *spec.StartDate
		}
		if spec.EndDate != nil {
			opts.EndDate = *spec.EndDate
		}

		res, err := deps.Scraper.Scrape(ctx, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), toScrapeOutput(spec.PlaceID, res))
	},
}

func toScrapeOutput(placeID string, res *scraper.Result) scrapeOutput {
	out := scrapeOutput{
		PlaceID:    placeID,
		PlaceName:  res.PlaceName,
		Collected:  res.Collected,
		StopReason: string(res.StopReason),
		Reviews:    make([]scrapedReview, 0, len(res.Reviews)),
	}
	for _, r := range res.Reviews {
		sr := scrapedReview{Text: r.Text, Author: r.Author, Rating: r.Rating}
		if r.Date != nil {
			sr.Date = r.Date.Format(dateLayout)
		}
		out.Reviews = append(out.Reviews, sr)
	}
	return out
}

var deleteCmd = &cobra.Command{
	Use:   "delete JOB_ID",
	Short: "Delete a job with its reviews and analyses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeServices(ctx, cfg, withStore|withCache)
		if err != nil {
			return err
		}
		defer deps.Cleanup()

		if err := worker.NewSubmitter(deps.Store, nil, deps.Progress).Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	enqueueFlags.register(enqueueCmd)
	scrapeFlags.register(scrapeCmd)
	statusCmd.Flags().BoolVar(&showReviews, "reviews", false, "Include reviews and their analyses")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
