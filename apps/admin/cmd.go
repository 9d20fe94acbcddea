package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/subscription"
)

var (
	confirmFunc = confirm // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	conf   *core.Config
	db     *sql.DB
	client backend.Client
	subSvc *subscription.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  token -principal PRINCIPAL - print an API token for a principal")
	fmt.Println("  pendingclaims - list pending payment claims")
	fmt.Println("  approveclaim -id CLAIM_ID [-yes] - activate the subscription and approve the claim")
	fmt.Println("  activate -student STUDENT_ID -class CLASS_ID - activate a class subscription without a claim")
	fmt.Println("  addadmin -principal PRINCIPAL - grant admin rights")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenPrincipal := tokenCmd.String("principal", "", "The caller principal the token is issued for.")

	approveCmd := flag.NewFlagSet("approveclaim", flag.ExitOnError)
	approveID := approveCmd.String("id", "", "The claim id.")
	approveYes := approveCmd.Bool("yes", false, "Do not ask for confirmation.")

	activateCmd := flag.NewFlagSet("activate", flag.ExitOnError)
	activateStudent := activateCmd.String("student", "", "The student id.")
	activateClass := activateCmd.String("class", "", "The class id.")

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminPrincipal := addAdminCmd.String("principal", "", "The principal to grant admin rights to.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenPrincipal == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenPrincipal)
	case "pendingclaims":
		return cli.pendingClaims(ctx)
	case "approveclaim":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveID == "" {
			approveCmd.Usage()
			return errHelp
		}
		if !*approveYes && !confirmFunc(fmt.Sprintf("Approve claim %s?", *approveID)) {
			return errAborted
		}
		return cli.approveClaim(ctx, *approveID)
	case "activate":
		if err := activateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *activateStudent == "" || *activateClass == "" {
			activateCmd.Usage()
			return errHelp
		}
		return cli.subSvc.ActivateSubscription(ctx, *activateStudent, *activateClass)
	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminPrincipal == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.client.AssignAdmin(ctx, *addAdminPrincipal)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) token(principal string) error {
	token, err := echoapi.GenerateToken(cli.conf.SecretKey, echoapi.NewClaims(cli.conf, principal))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, token)
	return err
}

func (cli *commandLine) pendingClaims(ctx context.Context) error {
	claims, err := cli.subSvc.ListPendingClaims(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTUDENT\tCLASS\tREFERENCE\tSUBMITTED")
	for _, c := range claims {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.StudentName, c.ClassName, c.Reference, c.Time().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (cli *commandLine) approveClaim(ctx context.Context, id string) error {
	claim, err := cli.subSvc.ApproveClaim(ctx, id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.out, "claim %s is %s\n", claim.ID, claim.Status)
	return err
}

// confirm asks on the terminal. Non-interactive stdin never confirms.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Printf("%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
