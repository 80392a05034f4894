package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/frahmantamala/institution-management/internal/auth"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/pkg/logger"
	"github.com/spf13/cobra"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision users without going through the HTTP API",
}

var provisionBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Provision every user listed in a CSV file",
	Long: `Provision every user listed in a CSV file. The header row names the columns:
email, first_name, last_name, permissions (space separated), employee_id, department,
qualification, admission_number, grade_level. Unknown columns are ignored.`,
	RunE: runProvisionBulk,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an administrator bearer token for a tenant",
	RunE:  runMintToken,
}

var (
	provisionSchema  string
	provisionType    string
	provisionFile    string
	provisionAdminID int64

	tokenSchema      string
	tokenUserID      int64
	tokenEmail       string
	tokenPermissions []string
)

func init() {
	provisionBulkCmd.Flags().StringVar(&provisionSchema, "schema", "", "tenant schema")
	provisionBulkCmd.Flags().StringVar(&provisionType, "type", "", "user type: "+strings.Join(coreUser.TypeNames(), ", "))
	provisionBulkCmd.Flags().StringVar(&provisionFile, "file", "", "CSV file with one user per row")
	provisionBulkCmd.Flags().Int64Var(&provisionAdminID, "admin-id", 0, "id of the administrator recorded as creator")
	for _, f := range []string{"schema", "type", "file", "admin-id"} {
		_ = provisionBulkCmd.MarkFlagRequired(f)
	}
	provisionCmd.AddCommand(provisionBulkCmd)

	tokenCmd.Flags().StringVar(&tokenSchema, "schema", "", "tenant schema the token is bound to")
	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "administrator user id")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "administrator email")
	tokenCmd.Flags().StringSliceVar(&tokenPermissions, "permissions", []string{auth.PermissionAll}, "granted permission keys")
	_ = tokenCmd.MarkFlagRequired("schema")
	_ = tokenCmd.MarkFlagRequired("user-id")
}

func runProvisionBulk(cmd *cobra.Command, _ []string) error {
	userType, ok := coreUser.ParseUserType(provisionType)
	if !ok {
		return fmt.Errorf("unknown user type %q", provisionType)
	}

	f, err := os.Open(provisionFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", provisionFile, err)
	}
	defer f.Close()

	items, err := readUsersCSV(f)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("no users found in file")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.Configure(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	app, err := buildApplication(cfg, lg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Close(ctx)
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := tenant.ValidateSchemaName(provisionSchema); err != nil {
		return err
	}
	inst, err := app.Institutions.FindBySchema(ctx, provisionSchema)
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}
	if inst == nil {
		return fmt.Errorf("no institution for schema %s", provisionSchema)
	}
	tc, err := tenant.New(inst.SchemaName, inst.ID, tenant.Status(inst.Status))
	if err != nil {
		return err
	}

	result, err := app.Bulk.ProvisionMany(ctx, tc, provisionAdminID, userType, items)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d users failed", len(result.Failed), len(items))
	}
	return nil
}

// readUsersCSV maps rows onto provisioning input by header name.
func readUsersCSV(r io.Reader) ([]provisioning.NewUserData, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["email"]; !ok {
		return nil, errors.New("csv header must include an email column")
	}

	var items []provisioning.NewUserData
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		item := provisioning.NewUserData{
			Email:     get("email"),
			FirstName: get("first_name"),
			LastName:  get("last_name"),
		}
		if perms := get("permissions"); perms != "" {
			item.Permissions = strings.Fields(perms)
		}
		if t := (provisioning.TeacherProfile{
			EmployeeID:    get("employee_id"),
			Department:    get("department"),
			Qualification: get("qualification"),
		}); t != (provisioning.TeacherProfile{}) {
			item.Teacher = &t
		}
		if s := (provisioning.StudentProfile{
			AdmissionNumber: get("admission_number"),
			GradeLevel:      get("grade_level"),
		}); s != (provisioning.StudentProfile{}) {
			item.Student = &s
		}
		items = append(items, item)
	}
	return items, nil
}

func runMintToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := tenant.ValidateSchemaName(tokenSchema); err != nil {
		return err
	}

	gen := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AccessTokenDuration)
	token, err := gen.GenerateAccessToken(auth.Principal{
		UserID:       tokenUserID,
		Email:        tokenEmail,
		TenantSchema: tokenSchema,
		Permissions:  tokenPermissions,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
