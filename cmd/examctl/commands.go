package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/certexam-service/internal/catalog"
	"github.com/kjstillabower/certexam-service/internal/dday"
	"github.com/kjstillabower/certexam-service/internal/models"
	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/validation"
	"github.com/kjstillabower/certexam-service/internal/weather"
)

func newRegionCmd(e *env) *cobra.Command {
	var fallback string
	cmd := &cobra.Command{
		Use:   "region <address>",
		Short: "Infer the forecast region of an address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := validation.ValidateAddress(strings.Join(args, " "), 0)
			if err != nil {
				return err
			}
			def, err := validation.ValidateRegion(fallback)
			if err != nil {
				return err
			}
			r, matched := region.Infer(addr)
			if !matched {
				r = def
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tmatched=%t\n", r, matched)
			return nil
		},
	}
	cmd.Flags().StringVar(&fallback, "default", string(region.Capital), "region for unrecognized addresses")
	return cmd
}

func newDDayCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "dday <date>...",
		Short: "Print the D-day label of exam dates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			now := e.now()
			for _, date := range args {
				label := "-"
				if days, ok := dday.DaysUntil(date, now); ok {
					label = dday.Format(days)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", date, label, dday.FormatDate(date, false))
			}
			return w.Flush()
		},
	}
}

func newWeatherCmd(e *env) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "weather <region>",
		Short: "Show the mid-term forecast summary of a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := validation.ValidateRegion(args[0])
			if err != nil {
				return err
			}
			backend, err := e.newBackend(e.opts)
			if err != nil {
				return err
			}
			payload, err := backend.MidWeather(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("fetch weather for %s: %w", r, err)
			}

			out := cmd.OutOrStdout()
			snap := weather.Summarize(payload)
			if date != "" {
				target, err := validation.ValidateDate(date, e.location())
				if err != nil {
					return err
				}
				if fc := weather.ForecastForDate(payload, target); fc != nil {
					fmt.Fprintf(out, "%s %s (D+%d from issue)\n", r, date, fc.DayOffset)
					printSnapshot(out, &fc.RegionWeatherSnapshot)
					return nil
				}
				fmt.Fprintf(out, "%s %s: outside forecast range, showing summary\n", r, date)
			}
			if snap == nil {
				fmt.Fprintf(out, "%s: no weather data\n", r)
				return nil
			}
			fmt.Fprintf(out, "%s (issued %s)\n", r, snap.TmFc)
			printSnapshot(out, snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "exam date (YYYY-MM-DD) to look up")
	return cmd
}

func newUpcomingCmd(e *env) *cobra.Command {
	var (
		limit     int
		practical bool
		fixedOnly bool
		keywords  []string
	)
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List the nearest upcoming exams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return validation.ErrInvalidLimit
			}
			backend, err := e.newBackend(e.opts)
			if err != nil {
				return err
			}
			builder := catalog.NewBuilder(backend, catalog.BuilderConfig{
				Keywords: keywords,
				Location: e.location(),
				Now:      e.clock.Now,
			}, e.logger())
			certs, err := builder.Certifications(cmd.Context())
			if err != nil {
				return err
			}
			exams := catalog.Upcoming(certs, e.now(), catalog.UpcomingOptions{
				Limit:            limit,
				IncludePractical: practical,
				SkipNoFixedDate:  fixedOnly,
				DefaultRegion:    region.Capital,
			})
			out := cmd.OutOrStdout()
			if len(exams) == 0 {
				fmt.Fprintln(out, "no upcoming exams")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, ex := range exams {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\t%s\n",
					ex.DDay, ex.Emoji, ex.CertificationName, ex.Round, ex.Kind, ex.Date, ex.Region)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 6, "number of exams to list")
	cmd.Flags().BoolVar(&practical, "practical", false, "include practical exam dates")
	cmd.Flags().BoolVar(&fixedOnly, "fixed-only", false, "leave out rolling-admission (상시) exams")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "license search keywords (default sweep when empty)")
	return cmd
}

func newCertCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "cert <name>",
		Short: "Show the rounds and fee trend of one certification",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := e.newBackend(e.opts)
			if err != nil {
				return err
			}
			builder := catalog.NewBuilder(backend, catalog.BuilderConfig{
				Location: e.location(),
				Now:      e.clock.Now,
			}, e.logger())
			cert, err := builder.ByName(cmd.Context(), strings.Join(args, " "))
			if errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("no schedule found for %q", strings.Join(args, " "))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", catalog.CategoryEmoji(cert.Category), cert.Name)
			rounds := catalog.SortRounds(cert.Exams)
			now := e.now()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, r := range rounds {
				label := "-"
				if days, ok := dday.DaysUntil(r.WrittenExam, now); ok {
					label = dday.Format(days)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Round, r.WrittenExam, label, formatFee(r.WrittenFee))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			trend := catalog.ComputeFeeTrend(rounds)
			if len(trend.Points) > 1 {
				fmt.Fprintf(out, "fees %s ~ %s (%+.1f%%)\n", formatFee(trend.MinFee), formatFee(trend.MaxFee), trend.PercentChange)
			}
			return nil
		},
	}
}

func printSnapshot(out io.Writer, s *models.RegionWeatherSnapshot) {
	fmt.Fprintf(out, "  %s %s\n", weather.Emoji(s.Condition), orDash(s.Condition))
	if s.MinTemp != nil && s.MaxTemp != nil {
		fmt.Fprintf(out, "  temp %.0f ~ %.0f°C\n", *s.MinTemp, *s.MaxTemp)
	}
	if s.RainProb != nil {
		fmt.Fprintf(out, "  rain %.0f%%\n", *s.RainProb)
	}
}

func formatFee(won int) string {
	s := fmt.Sprintf("%d", won)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String() + "원"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
