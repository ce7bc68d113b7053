package main

import (
	"os"
	"strings"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/fentz26/artifactory-cleaner/internal/report"
	"github.com/spf13/cobra"
)

var listReposCmd = &cobra.Command{
	Use:   "list-repos",
	Short: "List all available repos",
	RunE:  runListRepos,
}

var (
	reposDetails   bool
	reposNoHeaders bool
	reposOutput    string
	reposLocal     bool
	reposRemote    bool
	reposVirtual   bool
)

func init() {
	fs := listReposCmd.Flags()
	fs.BoolVar(&reposDetails, "details", false, "Show repository details")
	fs.BoolVarP(&reposNoHeaders, "no-headers", "H", false, "Scripting mode: no headers, fields separated by a single tab")
	fs.StringVarP(&reposOutput, "output", "o", "", "Comma-separated list of properties to display: key,package_type,class,url,description,repositories")
	fs.BoolVar(&reposLocal, "local", true, "Include local repositories")
	fs.BoolVar(&reposRemote, "remote", false, "Include remote (replication) repositories")
	fs.BoolVar(&reposVirtual, "virtual", false, "Include virtual (union) repositories")
}

func runListRepos(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctrl, err := a.controller()
	if err != nil {
		return err
	}
	byClass, err := ctrl.DiscoverRepos(cmd.Context())
	if err != nil {
		return err
	}

	var classes []models.RepoClass
	if reposLocal {
		classes = append(classes, models.RepoClassLocal)
	}
	if reposRemote {
		classes = append(classes, models.RepoClassRemote)
	}
	if reposVirtual {
		classes = append(classes, models.RepoClassVirtual)
	}

	var repos []models.Repository
	for _, class := range classes {
		repos = append(repos, byClass[class]...)
	}

	opts := report.RepoTableOptions{
		Details:   reposDetails,
		NoHeaders: reposNoHeaders,
		Classes:   classes,
	}
	if reposOutput != "" {
		opts.Columns = strings.Split(reposOutput, ",")
	}
	return report.WriteRepoTable(os.Stdout, repos, opts)
}
