package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
	"github.com/eliteGoblin/focusd/focustrack/internal/rules"
)

var (
	categoryScore      float64
	categoryProductive bool
	ruleKind           string
	ruleTitle          string
	rulePriority       int
	projectDescription string
	projectColor       string
	tagColor           string
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories and their matching rules",
	Long: `Categories group applications by productivity. Rules map an application
(and optionally a window title) to a category; the highest priority match
wins. Run 'focustrack category seed' to install the default rule sets.`,
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories and rules",
	Args:  cobra.NoArgs,
	RunE:  runCategoryList,
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryAdd,
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a category (tracked activity keeps its rows, uncategorized)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryDelete,
}

var categorySeedCmd = &cobra.Command{
	Use:   "seed [rule-set]...",
	Short: "Install default rule sets (all when none named)",
	RunE:  runCategorySeed,
}

var categoryRuleAddCmd = &cobra.Command{
	Use:   "rule-add <category> <app-pattern>",
	Short: "Add a matching rule to a category",
	Args:  cobra.ExactArgs(2),
	RunE:  runCategoryRuleAdd,
}

var categoryRuleDeleteCmd = &cobra.Command{
	Use:   "rule-delete <rule-id>",
	Short: "Delete a matching rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryRuleDelete,
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a project (its sessions are kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage session tags",
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	Args:  cobra.NoArgs,
	RunE:  runTagList,
}

var tagAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagAdd,
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a tag and detach it from sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runTagDelete,
}

func init() {
	categoryAddCmd.Flags().Float64Var(&categoryScore, "score", 0.5, "productivity score, 0.0 - 1.0")
	categoryAddCmd.Flags().BoolVar(&categoryProductive, "productive", false, "count time in this category as productive")
	categoryRuleAddCmd.Flags().StringVar(&ruleKind, "kind", rules.KindContains, "match kind ("+strings.Join(rules.NewMatcherRegistry().Kinds(), ", ")+")")
	categoryRuleAddCmd.Flags().StringVar(&ruleTitle, "title", "", "window title pattern (same kind)")
	categoryRuleAddCmd.Flags().IntVar(&rulePriority, "priority", 0, "higher priority rules win")
	projectAddCmd.Flags().StringVar(&projectDescription, "description", "", "project description")
	projectAddCmd.Flags().StringVar(&projectColor, "color", "", "display color")
	tagAddCmd.Flags().StringVar(&tagColor, "color", "", "display color")

	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryAddCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)
	categoryCmd.AddCommand(categorySeedCmd)
	categoryCmd.AddCommand(categoryRuleAddCmd)
	categoryCmd.AddCommand(categoryRuleDeleteCmd)

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectDeleteCmd)

	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagDeleteCmd)

	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(tagCmd)
}

func runCategoryList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		c := a.classifier()
		categories, err := c.Categories(ctx)
		if err != nil {
			return err
		}
		allRules, err := c.Rules(ctx)
		if err != nil {
			return err
		}
		if len(categories) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No categories (run 'focustrack category seed')")
			return nil
		}

		byCategory := make(map[int64][]domain.CategoryRule)
		for _, r := range allRules {
			byCategory[r.CategoryID] = append(byCategory[r.CategoryID], r)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, cat := range categories {
			productive := ""
			if cat.IsProductive {
				productive = " productive"
			}
			fmt.Fprintf(tw, "%s (score %.2f%s)\n", cat.Name, cat.ProductivityScore, productive)
			for _, r := range byCategory[cat.ID] {
				title := ""
				if r.TitlePattern != "" {
					title = "title=" + r.TitlePattern
				}
				fmt.Fprintf(tw, "  #%d\t%s\t%s\t%s\tpriority %d\n", r.ID, r.Kind, r.AppPattern, title, r.Priority)
			}
		}
		return tw.Flush()
	})
}

func runCategoryAdd(cmd *cobra.Command, args []string) error {
	if categoryScore < 0 || categoryScore > 1 {
		return fmt.Errorf("--score must be between 0 and 1, got %v", categoryScore)
	}
	return withApp(func(ctx context.Context, a *app) error {
		id, err := a.classifier().AddCategory(ctx, domain.Category{
			Name:              args[0],
			ProductivityScore: categoryScore,
			IsProductive:      categoryProductive,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Category %q added (#%d)\n", args[0], id)
		return nil
	})
}

func runCategoryDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.classifier().DeleteCategory(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Category %q deleted\n", args[0])
		return nil
	})
}

func runCategorySeed(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		res, err := a.classifier().Seed(ctx, rules.NewRegistry(), args...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d categories, %d rules\n", res.CategoriesCreated, res.RulesCreated)
		return nil
	})
}

func runCategoryRuleAdd(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		id, err := a.classifier().AddRule(ctx, args[0], domain.CategoryRule{
			Kind:         ruleKind,
			AppPattern:   args[1],
			TitlePattern: ruleTitle,
			Priority:     rulePriority,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule #%d added to %q\n", id, args[0])
		return nil
	})
}

func runCategoryRuleDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rule id %q", args[0])
	}
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.classifier().DeleteRule(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule #%d deleted\n", id)
		return nil
	})
}

func runProjectList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		projects, err := a.store.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCOLOR\tDESCRIPTION")
		for _, p := range projects {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Color, p.Description)
		}
		return tw.Flush()
	})
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if _, err := a.store.CreateProject(ctx, domain.Project{
			Name:        strings.TrimSpace(args[0]),
			Description: projectDescription,
			Color:       projectColor,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %q added\n", args[0])
		return nil
	})
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		p, err := a.store.GetProjectByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("project %q: %w", args[0], err)
		}
		if err := a.store.DeleteProject(ctx, p.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %q deleted\n", args[0])
		return nil
	})
}

func runTagList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		tags, err := a.store.ListTags(ctx)
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tags")
			return nil
		}
		for _, t := range tags {
			if t.Color != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", t.Name, t.Color)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), t.Name)
			}
		}
		return nil
	})
}

func runTagAdd(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if _, err := a.store.CreateTag(ctx, domain.Tag{Name: strings.TrimSpace(args[0]), Color: tagColor}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tag %q added\n", args[0])
		return nil
	})
}

func runTagDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		tags, err := a.store.ListTags(ctx)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.Name == args[0] {
				if err := a.store.DeleteTag(ctx, t.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tag %q deleted\n", args[0])
				return nil
			}
		}
		return fmt.Errorf("tag %q: %w", args[0], domain.ErrNotFound)
	})
}
