package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/ofsted-harvester/internal/pipeline"
	"github.com/JakeFAU/ofsted-harvester/internal/search"
)

type pageFlags struct {
	first int
	last  int
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.first, "first-page", 0, "first search page (0-indexed; default from config)")
	cmd.Flags().IntVar(&p.last, "last-page", 0, "last search page, negative for unbounded (default from config)")
}

func (p *pageFlags) resolve(cmd *cobra.Command, appInstance App) search.PageRange {
	cfg := appInstance.Config()
	r := search.PageRange{First: cfg.Search.FirstPage, Last: cfg.Search.LastPage}
	if cmd.Flags().Changed("first-page") {
		r.First = p.first
	}
	if cmd.Flags().Changed("last-page") {
		r.Last = p.last
	}
	return r
}

func newProvidersCmd() *cobra.Command {
	var pages pageFlags
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Crawl the search index into the providers table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Stages().Providers(cmd.Context(), pages.resolve(cmd, appInstance))
			renderSummaries(cmd.OutOrStdout(), summary)
			return err
		},
	}
	pages.register(cmd)
	return cmd
}

func newReportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List every provider's archived reports into the reports table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Stages().Reports(cmd.Context())
			renderSummaries(cmd.OutOrStdout(), summary)
			return err
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var year string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the report PDFs listed in the reports table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Stages().Download(cmd.Context(), pipeline.DownloadOptions{Year: year})
			renderSummaries(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "only download reports whose inspection date mentions this year")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Extract text from every downloaded PDF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Stages().Convert(cmd.Context(), prune)
			renderSummaries(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "delete each PDF once its text file exists")
	return cmd
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Count keyword mentions in every text file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Stages().Scan(cmd.Context())
			renderSummaries(cmd.OutOrStdout(), summary)
			return err
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		pages pageFlags
		year  string
		prune bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summaries, err := appInstance.Stages().Run(cmd.Context(), pipeline.RunOptions{
				Pages: pages.resolve(cmd, appInstance),
				Year:  year,
				Prune: prune,
			})
			renderSummaries(cmd.OutOrStdout(), summaries...)
			return err
		},
	}
	pages.register(cmd)
	cmd.Flags().StringVar(&year, "year", "", "only download reports whose inspection date mentions this year")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete each PDF once its text file exists")
	return cmd
}
