package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/PuerkitoBio/goquery"
)

const (
	accountManagerURL      = "https://bpr.calnet.berkeley.edu/account-manager/"
	accountManagerLoginURL = "https://bpr.calnet.berkeley.edu/account-manager/login/index"

	specialPurposeNotice = "Special Purpose Accounts cannot use this application"
)

// runCheck logs in to the CalNet account manager and prints the account
// summary, proving the configured credentials and Duo device work.
func runCheck(ctx context.Context) error {
	d, _, cleanup, err := authenticate(ctx, accountManagerLoginURL, accountManagerURL)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Println("Successfully logged in!")

	html, err := d.HTML(ctx)
	if err != nil {
		return fmt.Errorf("failed to read account page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse account page: %w", err)
	}

	if alert := doc.Find(".content > .alert").First(); alert.Length() > 0 {
		alertText := strings.TrimSpace(alert.Text())
		if strings.Contains(alertText, specialPurposeNotice) {
			fmt.Println("Detected a Special Purpose Account.")
			return nil
		}
		return fmt.Errorf("unexpected login message: %s", alertText)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	doc.Find(".content .col-sm-9 fieldset > .row").Each(func(_ int, row *goquery.Selection) {
		cells := row.Children()
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		fmt.Fprintf(w, "%s\t%s\n", label, value)
	})
	return w.Flush()
}
