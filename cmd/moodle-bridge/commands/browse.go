package commands

import (
	"os"
	"path/filepath"

	"moodle-bridge/lib/scrapers/moodle/browse"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	resourceOut = resourceCmd.Flags().String("out", "", "Write the file here instead of the scraped filename.")

	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(chaptersCmd)
	rootCmd.AddCommand(resourceCmd)
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Lists the course categories.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := browse.NewClient(createClient(cmd.Context(), cfg))

		categories, err := client.Categories(cmd.Context())
		if err != nil {
			fatal("failed to list categories", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Id", "Name", "Subcategories", "Complete"})
		for _, category := range categories {
			t.AppendRow(table.Row{
				category.Id, category.Name,
				len(category.Subcategories), !category.Incomplete,
			})
		}
		t.Render()
	},
}

var coursesCmd = &cobra.Command{
	Use:   "courses <category id>",
	Short: "Lists the courses in a category.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := browse.NewClient(createClient(cmd.Context(), cfg))

		courses, err := client.Courses(cmd.Context(), args[0])
		if err != nil {
			fatal("failed to list courses", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Id", "Name", "Url"})
		for _, course := range courses {
			t.AppendRow(table.Row{course.Id, course.Name, course.Url})
		}
		t.Render()
	},
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters <course id>",
	Short: "Lists the sections and activities of a course.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := browse.NewClient(createClient(cmd.Context(), cfg))

		content, err := client.Chapters(cmd.Context(), args[0])
		if err != nil {
			fatal("failed to fetch course content", err)
		}

		t := newTable()
		t.SetTitle(content.Title)
		t.AppendHeader(table.Row{"Section", "Activity", "Type", "Id"})
		for _, section := range content.Sections {
			for _, activity := range section.Activities {
				t.AppendRow(table.Row{
					section.Name, activity.Name, activity.Type, activity.Id,
				})
			}
		}
		t.Render()
	},
}

var resourceOut *string

var resourceCmd = &cobra.Command{
	Use:   "resource <resource id>",
	Short: "Downloads a resource file.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := browse.NewClient(createClient(cmd.Context(), cfg))

		payload, err := client.Resource(cmd.Context(), args[0])
		if err != nil {
			fatal("failed to download resource", err)
		}

		out := *resourceOut
		if out == "" {
			out = filepath.Base(payload.Filename)
		}
		err = os.WriteFile(out, payload.Content, 0644)
		if err != nil {
			fatal("failed to write file", err)
		}
	},
}
