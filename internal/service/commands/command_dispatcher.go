package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/sales"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not yet support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

// Usage lists the commands workers can send.
const Usage = "Commands:\n" +
	"/stock <farm> <category> <qty>\n" +
	"/mortality <farm> <category> <qty>\n" +
	"/sale <farm> <category> <qty> <price> [cost]\n" +
	"/status <farm> <category>"

// LedgerOperations is the part of the ledger service commands write through.
type LedgerOperations interface {
	Provision(ctx context.Context, key models.LedgerKey) (models.FarmLedger, bool, error)
	AppendStockEvent(ctx context.Context, key models.LedgerKey, ev models.StockEvent) (models.FarmLedger, error)
}

// SaleCommitter commits sales atomically.
type SaleCommitter interface {
	CommitSale(ctx context.Context, key models.LedgerKey, req sales.Request) (sales.Receipt, error)
}

// ReportingAdapter renders the dashboard digest of a ledger.
type ReportingAdapter interface {
	Digest(ctx context.Context, key models.LedgerKey) (string, error)
}

// Dispatcher executes parsed commands against the ledger.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	ledgers   LedgerOperations
	sales     SaleCommitter
	reporting ReportingAdapter
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewService constructs a command dispatcher. Event times are recorded in loc,
// UTC when loc is nil.
func NewService(ledgers LedgerOperations, sales SaleCommitter, reporting ReportingAdapter, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		ledgers:   ledgers,
		sales:     sales,
		reporting: reporting,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// HandleCommand runs cmd and returns the reply for the worker.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command",
		zap.String("command", string(cmd.Type)),
		zap.String("sender", sender),
		zap.String("ledger", cmd.Key.String()),
		zap.Strings("args", cmd.Args))

	if cmd.Type == models.CommandHelp {
		return Usage, nil
	}
	if cmd.Type == models.CommandUnknown {
		return "", ErrUnsupportedCommand
	}
	if !cmd.Key.Valid() {
		return "", fmt.Errorf("%w: farm and category required", ErrInvalidArguments)
	}

	at := cmd.SentAt
	if at.IsZero() {
		at = s.now()
	}
	occurred := models.NewOccurredAt(at.In(s.loc))

	switch cmd.Type {
	case models.CommandStock:
		qty, err := intArg(cmd.Args, 0)
		if err != nil {
			return "", err
		}
		current, _, err := s.ledgers.Provision(ctx, cmd.Key)
		if err != nil {
			return "", err
		}
		kind := models.EventAddition
		if len(current.Events) == 0 {
			kind = models.EventInitial
		}
		l, err := s.ledgers.AppendStockEvent(ctx, cmd.Key, models.StockEvent{Kind: kind, Quantity: qty, OccurredAt: occurred})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Stock %s recorded for %s: +%d. Current stock %d.", kind, cmd.Key, qty, l.CurrentStock), nil
	case models.CommandMortality:
		qty, err := intArg(cmd.Args, 0)
		if err != nil {
			return "", err
		}
		l, err := s.ledgers.AppendStockEvent(ctx, cmd.Key, models.StockEvent{Kind: models.EventDeath, Quantity: qty, OccurredAt: occurred})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Mortality logged for %s: %d. Current stock %d, mortality %.1f%%.", cmd.Key, qty, l.CurrentStock, l.MortalityRate), nil
	case models.CommandSale:
		req, err := buildSaleRequest(cmd, occurred)
		if err != nil {
			return "", err
		}
		receipt, err := s.sales.CommitSale(ctx, cmd.Key, req)
		if err != nil {
			return "", err
		}
		sale := receipt.Sale
		message := fmt.Sprintf("Sale recorded for %s: %d units @ %.2f, total %.2f, profit %.2f. Current stock %d.",
			cmd.Key, sale.Quantity, sale.PricePerUnit, sale.TotalAmount, sale.TotalProfit, receipt.Ledger.CurrentStock)
		if receipt.Replayed {
			message = "Already recorded. " + message
		}
		return message, nil
	case models.CommandStatus:
		if s.reporting == nil {
			return "", ErrUnsupportedCommand
		}
		return s.reporting.Digest(ctx, cmd.Key)
	default:
		return "", ErrUnsupportedCommand
	}
}

// Describe turns a dispatch failure into a reply the worker can act on.
func Describe(err error) string {
	var short *errs.InsufficientStockError
	switch {
	case errors.As(err, &short):
		return fmt.Sprintf("Not enough stock: %d available, %d requested.", short.Available, short.Requested)
	case errors.Is(err, ErrInvalidArguments):
		return "Could not read that command.\n" + Usage
	case errors.Is(err, ErrUnsupportedCommand):
		return "Unknown command.\n" + Usage
	case errs.IsNotFound(err):
		return "That farm/category has no ledger yet. Start it with /stock."
	case errs.IsTransient(err):
		return "The ledger is busy right now. Nothing was recorded, please resend."
	case errs.IsValidation(err), errs.IsConsistency(err):
		return fmt.Sprintf("Rejected (%s). Nothing was recorded.", errs.CodeOf(err))
	default:
		return "Something went wrong. Nothing was recorded."
	}
}

func buildSaleRequest(cmd models.Command, occurred models.OccurredAt) (sales.Request, error) {
	qty, err := intArg(cmd.Args, 0)
	if err != nil {
		return sales.Request{}, err
	}
	price, err := floatArg(cmd.Args, 1)
	if err != nil {
		return sales.Request{}, err
	}

	req := sales.Request{
		TransactionID: cmd.MessageID,
		Quantity:      qty,
		PricePerUnit:  price,
		OccurredAt:    occurred,
	}
	if len(cmd.Args) > 2 {
		cost, err := floatArg(cmd.Args, 2)
		if err != nil {
			return sales.Request{}, err
		}
		req.CostPerUnit = &cost
	}
	return req, nil
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, ErrInvalidArguments
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrInvalidArguments, args[i])
	}
	return v, nil
}

func floatArg(args []string, i int) (float64, error) {
	if len(args) <= i {
		return 0, ErrInvalidArguments
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArguments, args[i])
	}
	return v, nil
}
