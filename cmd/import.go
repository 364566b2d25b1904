package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/punchclock/internal/logging"
	"github.com/kozaktomas/punchclock/internal/punch"
)

var importCmd = &cobra.Command{
	Use:   "import <employees.yaml>",
	Short: "Onboard employees from a YAML file",
	Long: `Onboard a batch of employees into an organization.

Each entry goes through the same checks as the onboarding API: email
uniqueness, duplicate face detection and sequential EMP-nnn codes.
Entries without a password get a generated one, printed once.

Example file:
  organization: acme
  employees:
    - name: Jana Novakova
      email: jana@example.com
      department: Sales
      descriptor: [0.01, -0.12, ...]`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("org", "", "Organization id (overrides the file's organization)")
	importCmd.Flags().Bool("json", false, "Output results as JSON")
}

type importFile struct {
	Organization string        `yaml:"organization"`
	Employees    []importEntry `yaml:"employees"`
}

type importEntry struct {
	Name        string    `yaml:"name"`
	Email       string    `yaml:"email"`
	Phone       string    `yaml:"phone"`
	Department  string    `yaml:"department"`
	Designation string    `yaml:"designation"`
	Password    string    `yaml:"password"`
	Descriptor  []float32 `yaml:"descriptor"`
	FaceImage   string    `yaml:"face_image"`
}

type importResult struct {
	Email             string `json:"email"`
	Code              string `json:"code,omitempty"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
	Error             string `json:"error,omitempty"`
}

type importSummary struct {
	Organization  string         `json:"organization"`
	Imported      int            `json:"imported"`
	Failed        int            `json:"failed"`
	Results       []importResult `json:"results"`
	DurationMs    int64          `json:"duration_ms"`
	DurationHuman string         `json:"duration,omitempty"`
}

func loadImportFile(path string) (*importFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	var f importFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}
	if len(f.Employees) == 0 {
		return nil, errors.New("import file has no employees")
	}
	return &f, nil
}

// importEmployees onboards entries in file order and keeps going past
// failures. tick is called after every entry.
func importEmployees(ctx context.Context, coord *punch.Coordinator, org string, entries []importEntry, tick func()) []importResult {
	results := make([]importResult, 0, len(entries))
	for _, e := range entries {
		res := importResult{Email: e.Email}
		onboarded, err := coord.Onboard(ctx, org, punch.OnboardRequest{
			Name:        e.Name,
			Email:       e.Email,
			Phone:       e.Phone,
			Department:  e.Department,
			Designation: e.Designation,
			Password:    e.Password,
			Descriptor:  e.Descriptor,
			FaceImage:   e.FaceImage,
		})
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Code = onboarded.Employee.Code
			res.TemporaryPassword = onboarded.TemporaryPassword
		}
		results = append(results, res)
		if tick != nil {
			tick()
		}
	}
	return results
}

func runImport(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	file, err := loadImportFile(args[0])
	if err != nil {
		return err
	}
	org := mustGetString(cmd, "org")
	if org == "" {
		org = file.Organization
	}
	if org == "" {
		return errors.New("organization is required (--org or organization: in the file)")
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	var tick func()
	if !jsonOutput {
		bar := progressbar.NewOptions(len(file.Employees),
			progressbar.OptionSetDescription("Onboarding"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("employees"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		tick = func() { bar.Add(1) }
	}

	orgCtx := logging.ContextWithLogger(ctx, logger.With("org", org))
	results := importEmployees(orgCtx, a.coord, org, file.Employees, tick)
	duration := time.Since(start)

	summary := importSummary{Organization: org, Results: results, DurationMs: duration.Milliseconds()}
	for _, r := range results {
		if r.Error != "" {
			summary.Failed++
		} else {
			summary.Imported++
		}
	}

	if jsonOutput {
		if err := outputJSON(summary); err != nil {
			return err
		}
	} else {
		summary.DurationHuman = formatDuration(duration)
		fmt.Println("\nImport complete!")
		for _, r := range results {
			switch {
			case r.Error != "":
				fmt.Printf("  FAILED %s: %s\n", r.Email, r.Error)
			case r.TemporaryPassword != "":
				fmt.Printf("  %s %s (temporary password: %s)\n", r.Code, r.Email, r.TemporaryPassword)
			default:
				fmt.Printf("  %s %s\n", r.Code, r.Email)
			}
		}
		fmt.Printf("  Imported: %d\n", summary.Imported)
		if summary.Failed > 0 {
			fmt.Printf("  Failed:   %d\n", summary.Failed)
		}
		fmt.Printf("  Duration: %s\n", summary.DurationHuman)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d employees failed to import", summary.Failed, len(results))
	}
	return nil
}
