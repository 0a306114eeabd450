package firstrun

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// recordingRunner records every command and fails the ones listed in failures,
// keyed by Command.Path.
type recordingRunner struct {
	commands []Command
	failures map[string]error
}

func (r *recordingRunner) Run(ctx context.Context, cmd Command) error {
	r.commands = append(r.commands, cmd)
	return r.failures[cmd.Path]
}

func (r *recordingRunner) paths() []string {
	var out []string
	for _, c := range r.commands {
		out = append(out, c.Path)
	}
	return out
}

func TestSQLPlusCommand(t *testing.T) {
	t.Setenv("FIRSTRUN_TEST_PASSWORD", "s3cret")

	db := DatabaseConfig{Client: "sqlplus64", Host: "oracle-db", Port: 1521, Service: "XEPDB1"}
	script := SQLScript{Name: "admin", User: "system", PasswordEnv: "FIRSTRUN_TEST_PASSWORD", Path: "/sql/admin.sql"}

	cmd := SQLPlusCommand(db, script)

	assert.Equal(t, "sqlplus64", cmd.Path)
	assert.Equal(t, []string{"-S", "system/s3cret@oracle-db:1521/XEPDB1", "@/sql/admin.sql"}, cmd.Args)
	assert.Equal(t, "sqlplus64 -S system/***@oracle-db:1521/XEPDB1 @/sql/admin.sql", cmd.String())
	assert.NotContains(t, cmd.String(), "s3cret")
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "/opt/setup.sh", Command{Path: "/opt/setup.sh"}.String())
	assert.Equal(t, "echo a b", Command{Path: "echo", Args: []string{"a", "b"}}.String())
	assert.Equal(t, "masked", Command{Path: "echo", Args: []string{"secret"}, Display: "masked"}.String())
}

func TestInitializerPlan(t *testing.T) {
	config := DefaultConfig()

	steps := NewInitializer(config, nil).Plan()
	require.Len(t, steps, 3)

	assert.Equal(t, "setup", steps[0].Name)
	assert.Equal(t, "/opt/firstrun/setup.sh", steps[0].Command.Path)
	assert.Empty(t, steps[0].Command.Args)

	assert.Equal(t, "sql:admin", steps[1].Name)
	assert.Equal(t, "@/opt/firstrun/sql/admin.sql", steps[1].Command.Args[2])

	assert.Equal(t, "sql:app", steps[2].Name)
	assert.Equal(t, "@/opt/firstrun/sql/app.sql", steps[2].Command.Args[2])
}

func TestInitializerPlan_NoSetupScript(t *testing.T) {
	config := DefaultConfig()
	config.SetupScript = ""

	steps := NewInitializer(config, nil).Plan()
	require.Len(t, steps, 2)
	assert.Equal(t, "sql:admin", steps[0].Name)
}

func TestInitializerRun(t *testing.T) {
	runner := &recordingRunner{}
	config := DefaultConfig()

	err := NewInitializer(config, runner).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/firstrun/setup.sh", "sqlplus64", "sqlplus64"}, runner.paths())
}

func TestInitializerRun_BestEffort(t *testing.T) {
	setupErr := errors.New("exit status 1")
	clientErr := errors.New("exit status 2")
	runner := &recordingRunner{failures: map[string]error{
		"/opt/firstrun/setup.sh": setupErr,
		"sqlplus64":              clientErr,
	}}

	err := NewInitializer(DefaultConfig(), runner).Run(context.Background())
	require.Error(t, err)

	// Every step still ran
	assert.Len(t, runner.commands, 3)

	errs := multierr.Errors(err)
	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], setupErr)
	assert.Contains(t, errs[0].Error(), "step setup")
	assert.Contains(t, errs[1].Error(), "step sql:admin")
	assert.Contains(t, errs[2].Error(), "step sql:app")
}

func TestInitializerRun_Canceled(t *testing.T) {
	runner := &recordingRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewInitializer(DefaultConfig(), runner).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.commands)
}
