package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-brew-client/apiclient"
	"github.com/jrsteele09/go-brew-client/brews"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/internal/utils"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":               {summary: "sign in with an emailed one-time code", run: loginCmd},
	"logout":              {summary: "forget the stored session", run: logoutCmd},
	"whoami":              {summary: "show the signed-in user", run: whoamiCmd},
	"refresh":             {summary: "force an access token refresh", run: refreshCmd},
	"register":            {summary: "create an account", run: registerCmd},
	"resend-verification": {summary: "resend the account verification email", run: resendVerificationCmd},
	"brews":               {summary: "list your brews", run: brewsCmd},
	"brew-create":         {summary: "create a brew", run: brewCreateCmd},
	"briefings":           {summary: "list the briefings of a brew", run: briefingsCmd},
	"briefing":            {summary: "show one briefing", run: briefingCmd},
	"feedback":            {summary: "like or dislike a briefing or article", run: feedbackCmd},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "login")
	email := fs.String("email", "", "account email")
	code := fs.String("code", "", "one-time code (prompted for when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	challenge, err := a.provider.InitiateSignIn(ctx, *email)
	if errors.Is(err, brewerrors.ErrUnsupported) {
		return fmt.Errorf("the configured identity provider signs in through its own pages: %w", err)
	}
	if err != nil {
		return err
	}
	if challenge.Message != "" {
		fmt.Fprintln(a.out, challenge.Message)
	}

	otp := strings.TrimSpace(*code)
	if otp == "" {
		if otp, err = prompt(a.in, a.out, "Code: "); err != nil {
			return err
		}
	}

	result, err := a.provider.ConfirmSignIn(ctx, challenge, otp)
	if err != nil {
		return err
	}
	if err := a.session.Login(result.Tokens, result.User); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", result.User.Name())
	return nil
}

func logoutCmd(_ context.Context, a *app, _ []string) error {
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func whoamiCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "whoami")
	remote := fs.Bool("remote", false, "fetch the profile from the backend")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, ok := a.session.CurrentUser()
	if !ok {
		return brewerrors.ErrAuthenticationRequired
	}
	if *remote {
		fresh, err := a.api.Me(ctx)
		if err != nil {
			return err
		}
		user = fresh
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name\t%s\n", user.Name())
	fmt.Fprintf(w, "Email\t%s\n", user.Email)
	fmt.Fprintf(w, "Timezone\t%s\n", user.Timezone)
	if len(user.Interests) > 0 {
		fmt.Fprintf(w, "Interests\t%s\n", strings.Join(user.Interests, ", "))
	}
	if expiry := a.session.Session().Expiry; expiry != nil {
		fmt.Fprintf(w, "Token expires\t%s\n", expiry.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(w, "Authenticated\t%t\n", a.session.IsAuthenticated())
	return w.Flush()
}

func refreshCmd(ctx context.Context, a *app, _ []string) error {
	if _, err := a.session.RefreshToken(ctx); err != nil {
		return err
	}
	if expiry := a.session.Session().Expiry; expiry != nil {
		fmt.Fprintf(a.out, "Token refreshed, expires %s\n", expiry.Local().Format(time.RFC1123))
	}
	return nil
}

func registerCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "register")
	var req apiclient.RegisterRequest
	var interests string
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	fs.StringVar(&req.Country, "country", "", "country")
	fs.StringVar(&interests, "interests", "", "comma separated interests")
	fs.StringVar(&req.Timezone, "timezone", "", "IANA timezone (default UTC)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req.Interests = splitList(interests)

	result, err := a.api.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result.Message)
	return nil
}

func resendVerificationCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "resend-verification")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	msg, err := a.api.ResendVerification(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func brewsCmd(ctx context.Context, a *app, _ []string) error {
	list, err := a.api.ListBrews(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDELIVERY\tTOPICS\tACTIVE\tSENT")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\n",
			b.ID, b.Name, b.DeliveryTime, strings.Join(b.Topics, ","), b.IsActive, b.BriefingsSent)
	}
	return w.Flush()
}

func brewCreateCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "brew-create")
	name := fs.String("name", "", "brew name")
	deliveryTime := fs.String("time", "", "delivery time, HH:MM")
	topics := fs.String("topics", "", "comma separated topics (max 10)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	created, err := a.api.CreateBrew(ctx, brews.CreateRequest{
		Name:         *name,
		Topics:       splitList(*topics),
		DeliveryTime: *deliveryTime,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created brew %s (%s)\n", created.Name, created.BrewID)
	return nil
}

func briefingsCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "briefings")
	var opts brews.ListBriefingsOptions
	fs.StringVar(&opts.BrewID, "brew", "", "brew id")
	fs.IntVar(&opts.Limit, "limit", brews.DefaultBriefingLimit, "page size (max 100)")
	fs.IntVar(&opts.Offset, "offset", 0, "number of briefings to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := a.api.ListBriefings(ctx, opts)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEDITORIAL\tSTATUS\tARTICLES\tSENT")
	for _, b := range page.Briefings {
		sent := "-"
		if !b.SentAt.IsZero() {
			sent = b.SentAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.EditorialID, b.DeliveryStatus, b.ArticleCount, sent)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d\n", len(page.Briefings), page.TotalCount)
	return nil
}

func briefingCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "briefing")
	id := fs.String("id", "", "briefing id")
	var opts brews.GetBriefingOptions
	fs.BoolVar(&opts.IncludeContent, "content", false, "include the rendered content")
	fs.BoolVar(&opts.IncludeArticles, "articles", false, "include the curated articles")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := a.api.GetBriefing(ctx, *id, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n%d articles, status %s\n", b.Subject, b.ArticleCount, b.Status)
	for _, article := range b.Articles {
		fmt.Fprintf(a.out, "%2d. %s (%s)\n", article.Position, article.Headline, article.Source)
	}
	if b.Content != "" {
		fmt.Fprintln(a.out, b.Content)
	}
	return nil
}

func feedbackCmd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "feedback")
	editorialID := fs.String("editorial", "", "editorial id")
	dislike := fs.Bool("dislike", false, "record a dislike instead of a like")
	position := fs.Int("article", -1, "article position; omit for feedback on the whole briefing")
	status := fs.Bool("status", false, "show existing feedback instead of submitting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *status {
		st, err := a.api.FeedbackStatus(ctx, *editorialID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "overall: %s\n", utils.ValueOr(st.OverallFeedback, "-"))
		for _, article := range st.Articles {
			fmt.Fprintf(a.out, "%2d: %s\n", article.Position, utils.ValueOr(article.Feedback, "-"))
		}
		return nil
	}

	req := brews.FeedbackRequest{EditorialID: *editorialID, Type: brews.FeedbackOverall, Like: !*dislike}
	if *position >= 0 {
		req.Type = brews.FeedbackArticle
		req.ArticlePosition = position
	}
	receipt, err := a.api.SubmitFeedback(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, receipt.Message)
	return nil
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func splitList(s string) []string {
	return utils.CompactStrings(strings.Split(s, ","))
}
