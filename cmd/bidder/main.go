// bidder is a command-line client for bidding as a guest. Accepted bids are
// remembered locally so the guest can check their standing later without an
// account.
//
//	bidder bid --auction auction1 --email ana@example.com --name Ana --amount 125.50
//	bidder status --auction auction1 --email ana@example.com
package main

import (
	"bidding-core/internal/biddingerrors"
	"bidding-core/internal/client"
	"bidding-core/internal/guesttracker"
	model "bidding-core/internal/models"
	"bidding-core/services/bidding/helpers"
	"bidding-core/utils"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	server    string
	storePath string
	auctionID string
	email     string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	defaultServer := os.Getenv("BIDDING_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	fs.StringVar(&f.server, "server", defaultServer, "bidding server base URL")
	fs.StringVar(&f.storePath, "store", "", "guest bid history file (default: user config dir)")
	fs.StringVar(&f.auctionID, "auction", "", "auction ID")
	fs.StringVar(&f.email, "email", "", "guest contact email")
}

func (f *commonFlags) validate() error {
	if f.auctionID == "" || f.email == "" {
		return errors.New("--auction and --email are required")
	}
	return nil
}

func (f *commonFlags) tracker() (*guesttracker.Tracker, error) {
	path := f.storePath
	if path == "" {
		var err error
		if path, err = guesttracker.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return guesttracker.New(guesttracker.NewFileStore(path))
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch args[0] {
	case "bid":
		return runBid(ctx, args[1:], out)
	case "status":
		return runStatus(ctx, args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "usage: bidder <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  bid      place a bid as a guest")
	fmt.Fprintln(out, "  status   show your bids on an auction and whether you are winning")
}

func runBid(ctx context.Context, args []string, out io.Writer) error {
	var (
		common commonFlags
		name   string
		amount string
	)
	fs := pflag.NewFlagSet("bidder bid", pflag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&name, "name", "", "display name shown with your bid")
	fs.StringVar(&amount, "amount", "", "bid amount, e.g. 125.50")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := common.validate(); err != nil {
		return err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid --amount %q: %w", amount, err)
	}

	tracker, err := common.tracker()
	if err != nil {
		return err
	}

	api := client.New(common.server, nil)
	bid, err := api.SubmitBid(ctx, common.auctionID, helpers.SubmitBidRequest{
		BidderID:    utils.GuestBidderID(common.email),
		DisplayName: name,
		Email:       common.email,
		IsGuest:     true,
		Amount:      &value,
	})
	if err != nil {
		if current, ok := biddingerrors.CurrentBidOf(err); ok {
			fmt.Fprintf(out, "bid rejected: %v\ncurrent bid is %s\n", err, current.StringFixed(2))
			return err
		}
		return fmt.Errorf("submit bid: %w", err)
	}

	if _, err := tracker.Record(bid.AuctionID, common.email, name, bid.Amount); err != nil {
		// The bid stands on the server either way.
		utils.Warn("bidder: could not save bid locally", map[string]any{"auction_id": bid.AuctionID, "error": err.Error()})
	}

	fmt.Fprintf(out, "bid %s accepted: %s on %s at %s\n",
		bid.ID, bid.Amount.StringFixed(2), bid.AuctionID, bid.SubmittedAt.Local().Format(time.DateTime))
	return nil
}

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	fs := pflag.NewFlagSet("bidder status", pflag.ContinueOnError)
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := common.validate(); err != nil {
		return err
	}

	tracker, err := common.tracker()
	if err != nil {
		return err
	}

	auction, err := client.New(common.server, nil).GetAuction(ctx, common.auctionID)
	if err != nil {
		return fmt.Errorf("fetch auction: %w", err)
	}

	status := auction.Status(time.Now())
	fmt.Fprintf(out, "%s (%s)\ncurrent bid %s, %d bidders, ends %s\n",
		auction.Title, status, auction.CurrentBid.StringFixed(2), auction.BidderCount, auction.EndTime.Local().Format(time.DateTime))

	records := tracker.BidsBy(common.auctionID, common.email)
	if len(records) == 0 {
		fmt.Fprintln(out, "you have no recorded bids on this auction")
		return nil
	}

	fmt.Fprintln(out, "your bids:")
	for _, rec := range records {
		fmt.Fprintf(out, "  %s  %s\n", rec.SubmittedAt.Local().Format(time.DateTime), rec.Amount.StringFixed(2))
	}

	switch {
	case tracker.IsHighestBidder(common.auctionID, common.email, auction.CurrentBid) && status == model.StatusEnded:
		fmt.Fprintln(out, "you won this auction")
	case tracker.IsHighestBidder(common.auctionID, common.email, auction.CurrentBid):
		fmt.Fprintln(out, "you hold the highest bid")
	default:
		fmt.Fprintln(out, "you have been outbid")
	}
	return nil
}
