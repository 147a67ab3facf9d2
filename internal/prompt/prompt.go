// Package prompt reads run settings from an interactive console.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/JakeFAU/aqsharvest/internal/harvest"
)

// ErrNoInput is returned when the input ends before a prompt is answered.
var ErrNoInput = errors.New("input closed before an answer was given")

// maxAttempts bounds re-prompting on invalid numeric input.
const maxAttempts = 5

// Console asks questions on out and reads answers from in.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	secret func() (string, error)
}

// New builds a Console over plain readers. Secrets are read as ordinary lines.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// NewTerminal builds a Console over a file. When the file is a terminal,
// secrets are read without echo.
func NewTerminal(in *os.File, out io.Writer) *Console {
	c := New(in, out)
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		c.secret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(c.out)
			if err != nil {
				return "", fmt.Errorf("read secret: %w", err)
			}
			return string(b), nil
		}
	}
	return c
}

// Line prints label and returns the trimmed answer.
func (c *Console) Line(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Secret is Line without echo when the console is a terminal.
func (c *Console) Secret(label string) (string, error) {
	if c.secret == nil {
		return c.Line(label)
	}
	fmt.Fprint(c.out, label)
	v, err := c.secret()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

// Year asks for a year, re-prompting on answers that are not integers.
func (c *Console) Year(label string) (int, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		answer, err := c.Line(label)
		if err != nil {
			return 0, err
		}
		year, err := strconv.Atoi(answer)
		if err == nil {
			return year, nil
		}
		fmt.Fprintf(c.out, "%q is not a year\n", answer)
	}
	return 0, fmt.Errorf("no valid year after %d attempts", maxAttempts)
}

// Credentials fills in whichever of email and key are empty.
func (c *Console) Credentials(email, key string) (string, string, error) {
	var err error
	if email == "" {
		if email, err = c.Line("Enter your AQS API email: "); err != nil {
			return "", "", err
		}
	}
	if key == "" {
		if key, err = c.Secret("Enter your AQS API key: "); err != nil {
			return "", "", err
		}
	}
	return email, key, nil
}

// Years fills in whichever bound of r is zero.
func (c *Console) Years(r harvest.YearRange) (harvest.YearRange, error) {
	var err error
	if r.Start == 0 {
		if r.Start, err = c.Year("Enter the start year (e.g., 2010): "); err != nil {
			return r, err
		}
	}
	if r.End == 0 {
		if r.End, err = c.Year("Enter the end year (e.g., 2023): "); err != nil {
			return r, err
		}
	}
	return r, nil
}

// ShowCatalog prints the selectable classes.
func (c *Console) ShowCatalog(classes []harvest.Class) {
	fmt.Fprintln(c.out, "Available Parameter Classes:")
	for _, cl := range classes {
		fmt.Fprintf(c.out, "%s: %s\n", cl.Code, cl.Description)
	}
}

// Classes shows the catalog and returns the known codes the user entered.
// Unknown codes are reported and skipped.
func (c *Console) Classes() ([]string, error) {
	c.ShowCatalog(harvest.Catalog())
	answer, err := c.Line("Enter the class codes you want to download, separated by commas (e.g., VOC,HAPS): ")
	if err != nil {
		return nil, err
	}
	known, unknown := harvest.ParseClassSelection(answer)
	if len(unknown) > 0 {
		fmt.Fprintf(c.out, "Ignoring unknown classes: %s\n", strings.Join(unknown, ", "))
	}
	return known, nil
}

// ShowGroups prints each group's parameters.
func (c *Console) ShowGroups(groups []harvest.Group) {
	for _, g := range groups {
		fmt.Fprintf(c.out, "\nParameters for class %s:\n", g.Name)
		for _, p := range g.Params.Parameters() {
			fmt.Fprintf(c.out, "  %s (%s)\n", p.Name, p.Code)
		}
	}
}

// Confirm asks a yes/no question. Only "yes" in any case is consent.
func (c *Console) Confirm(label string) (bool, error) {
	answer, err := c.Line(label)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "yes"), nil
}

// ConfirmGroups shows the resolved groups and asks to proceed.
// It satisfies harvest.ConfirmFunc.
func (c *Console) ConfirmGroups(ctx context.Context, groups []harvest.Group) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.ShowGroups(groups)
	ok, err := c.Confirm("Proceed with download? (yes/no): ")
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Fprintln(c.out, "Download cancelled.")
	}
	return ok, nil
}
