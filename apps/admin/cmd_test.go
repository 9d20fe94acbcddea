package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/subscription"
	claimstore "github.com/trezcool/shule/storage/claims"
	"github.com/trezcool/shule/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.School, *bytes.Buffer) {
	school := testutil.SeedSchool(t)
	out := new(bytes.Buffer)
	conf := testutil.NewConfig()
	store := claimstore.NewMemoryStore()

	return &commandLine{
		conf:   conf,
		client: school.Client,
		subSvc: subscription.NewService(backend.Ready(school.Client), store, nil, &testutil.Logger{}, subscription.Options{}),
		out:    out,
	}, school, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v", tt.wantErr)
		}
		return
	}
	if tt.wantErr != nil {
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	} else if tt.wantErrStr != "" {
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	} else {
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate without subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "token without principal", args: []string{"token"}, wantErr: errHelp},
		{name: "approveclaim without id", args: []string{"approveclaim"}, wantErr: errHelp},
		{name: "activate without class", args: []string{"activate", "-student", "s1"}, wantErr: errHelp},
		{name: "addadmin without principal", args: []string{"addadmin"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		if dir != "migrations" {
			return fmt.Errorf("unexpected migrations dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "class_teacher", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_token(t *testing.T) {
	cli, _, out := setup(t)

	if err := cli.run([]string{"admin", "token", "-principal", testutil.AdminPrincipal}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	if err != nil {
		t.Fatalf("jwt.ParseWithClaims() error = %v", err)
	}
	if claims.Subject != testutil.AdminPrincipal {
		t.Errorf("token subject = %q, want %q", claims.Subject, testutil.AdminPrincipal)
	}
}

func Test_commandLine_claims(t *testing.T) {
	cli, school, out := setup(t)
	ctx := context.Background()

	claim, err := cli.subSvc.SubmitPaymentClaim(ctx, subscription.NewClaim{
		StudentID:   school.Student.ID,
		StudentName: school.Student.FullName(),
		ClassID:     school.Class.ID,
		ClassName:   school.Class.Name,
		Reference:   "MPESA-QX81",
	})
	if err != nil {
		t.Fatalf("SubmitPaymentClaim() error = %v", err)
	}

	if err = cli.run([]string{"admin", "pendingclaims"}); err != nil {
		t.Fatalf("cli.run(pendingclaims) error = %v", err)
	}
	if !strings.Contains(out.String(), claim.ID) || !strings.Contains(out.String(), "MPESA-QX81") {
		t.Errorf("pendingclaims output = %q, want claim %s", out.String(), claim.ID)
	}

	type extra struct {
		confirmed bool
	}
	tests := []cliTest{
		{name: "not confirmed", args: []string{"approveclaim", "-id", claim.ID}, wantErr: errAborted},
		{name: "unknown claim", args: []string{"approveclaim", "-id", "nope", "-yes"}, wantErrStr: core.NewNotFoundError("claim", "nope").Error()},
		{name: "confirmed", args: []string{"approveclaim", "-id", claim.ID}, extra: extra{confirmed: true}},
		{name: "already approved", args: []string{"approveclaim", "-id", claim.ID, "-yes"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		confirmFunc = func(string) bool {
			e, ok := tt.extra.(extra)
			return ok && e.confirmed
		}

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	ok, err := school.Client.HasClassSubscription(ctx, school.Student.ID, school.Class.ID)
	if err != nil || !ok {
		t.Errorf("HasClassSubscription() = %v, %v; want true", ok, err)
	}
	pending, err := cli.subSvc.ListPendingClaims(ctx)
	if err != nil || len(pending) != 0 {
		t.Errorf("ListPendingClaims() = %v, %v; want none", pending, err)
	}
}

func Test_commandLine_activate(t *testing.T) {
	cli, school, _ := setup(t)
	ctx := context.Background()

	err := cli.run([]string{"admin", "activate", "-student", "nope", "-class", school.Class.ID})
	if !core.IsNotFound(err) {
		t.Errorf("cli.run() error = %v, want not found", err)
	}

	if err = cli.run([]string{"admin", "activate", "-student", school.Student.ID, "-class", school.Class.ID}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	ok, err := school.Client.HasClassSubscription(ctx, school.Student.ID, school.Class.ID)
	if err != nil || !ok {
		t.Errorf("HasClassSubscription() = %v, %v; want true", ok, err)
	}
}

func Test_commandLine_addadmin(t *testing.T) {
	cli, school, _ := setup(t)

	if err := cli.run([]string{"admin", "addadmin", "-principal", testutil.TeacherPrincipal}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	ok, err := school.Client.IsCallerAdmin(context.Background(), testutil.TeacherPrincipal)
	if err != nil || !ok {
		t.Errorf("IsCallerAdmin() = %v, %v; want true", ok, err)
	}
}
