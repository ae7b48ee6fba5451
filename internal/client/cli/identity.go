package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/gitwiki/internal/client/client"
	pb "github.com/dmitrijs2005/gitwiki/internal/proto"
	"github.com/spf13/pflag"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var jsonOptions = protojson.MarshalOptions{Multiline: true, Indent: "  "}

func writeProto(w io.Writer, m proto.Message) error {
	b, err := jsonOptions.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func runPing(ctx context.Context, a *App, c client.Client, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is up\n", a.config.ServerEndpointAddr)
	return nil
}

func runAdd(ctx context.Context, a *App, c client.Client, args []string) error {
	var (
		id     pb.Identity
		asJSON bool
	)
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&id.Name, "name", "", "display name")
	fs.StringVar(&id.Email, "email", "", "commit author email")
	fs.StringVar(&id.ProfileURL, "url", "", "IndieAuth profile URL")
	fs.StringVar(&id.Role, "role", "standard", "standard or administrator")
	fs.BoolVar(&asJSON, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	var err error
	if id.ProfileURL == "" {
		if id.ProfileURL, err = GetSimpleText(a.reader, "Profile URL", a.out); err != nil {
			return err
		}
	}
	if id.Name == "" {
		if id.Name, err = GetSimpleText(a.reader, "Display name", a.out); err != nil {
			return err
		}
	}
	if id.ProfileURL == "" || id.Name == "" {
		return errors.New("name and url are required")
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	added, err := c.AddIdentity(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		return writeProto(a.out, added.Struct())
	}
	fmt.Fprintf(a.out, "added %s (%s) as %s\n", added.Name, added.ProfileURL, added.Role)
	return nil
}

func runList(ctx context.Context, a *App, c client.Client, args []string) error {
	var asJSON bool
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&asJSON, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	ids, err := c.ListIdentities(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		values := make([]*structpb.Value, 0, len(ids))
		for _, id := range ids {
			values = append(values, structpb.NewStructValue(id.Struct()))
		}
		return writeProto(a.out, &structpb.ListValue{Values: values})
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLE\tPROFILE URL\tEMAIL\tCREATED")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id.Name, id.Role, id.ProfileURL, dash(id.Email), id.CreatedAt)
	}
	return tw.Flush()
}

func runLookup(ctx context.Context, a *App, c client.Client, args []string) error {
	var asJSON bool
	fs := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&asJSON, "json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wikictl lookup PROFILE_URL")
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	id, err := c.LookupIdentity(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if asJSON {
		return writeProto(a.out, id.Struct())
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", id.Name)
	fmt.Fprintf(tw, "Email:\t%s\n", dash(id.Email))
	fmt.Fprintf(tw, "Profile URL:\t%s\n", id.ProfileURL)
	fmt.Fprintf(tw, "Role:\t%s\n", id.Role)
	fmt.Fprintf(tw, "Created:\t%s\n", id.CreatedAt)
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
