package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Diego-II/expense-tracker-api/internal/api/handlers"
	"github.com/Diego-II/expense-tracker-api/internal/backend"
	"github.com/Diego-II/expense-tracker-api/internal/config"
	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/email"
	"github.com/Diego-II/expense-tracker-api/internal/gcs"
	"github.com/Diego-II/expense-tracker-api/internal/jobs"
	jobsamqp "github.com/Diego-II/expense-tracker-api/internal/jobs/amqp"
	"github.com/Diego-II/expense-tracker-api/internal/ledger"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.JSONLogs()})

	switch os.Args[1] {
	case "add-expense":
		runAddExpense(cfg, log)
	case "process-email":
		runProcessEmail(cfg, log)
	case "import-mbox":
		runImportMbox(cfg, log)
	case "publish-email":
		runPublishEmail(cfg, log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add-expense    Append an expense to the ledger and record store")
	fmt.Println("  process-email  Extract and save the expense in a raw email (local file or gs:// URI)")
	fmt.Println("  import-mbox    Process every message of an mbox export")
	fmt.Println("  publish-email  Queue a raw email for the worker (QUEUE_BACKEND=amqp)")
	fmt.Println("  upload         Upload a raw email to GCS")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runAddExpense(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("add-expense", flag.ExitOnError)
	amount := fs.String("amount", "", "Expense amount, e.g. 12.50")
	merchant := fs.String("merchant", "", "Merchant name")
	name := fs.String("name", "", "Short description")
	card := fs.String("card", "", "Card kind: credit, debit or account")
	fs.Parse(os.Args[2:])

	if err := cfg.ValidateForAPI(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	in := domain.ExpenseInput{Merchant: merchant, Name: name, Card: card}
	if *amount != "" {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			log.Fatal().Err(err).Str("amount", *amount).Msg("Invalid amount")
		}
		in.Amount = decimal.NewNullDecimal(d)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	objects, err := gcs.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer objects.Close()

	store, err := backend.NewFactory(log).NewRecordStore(ctx, *cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer store.Close()

	writer := ledger.NewWriter(objects, ledger.WithConditionalWrites(cfg.LedgerConditionalWrites))
	h := handlers.NewExpensesHandler(writer, store, cfg.ExpensesBucket, log)

	id, key, err := h.SaveExpense(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to save expense")
	}

	fmt.Printf("Saved expense %s to gs://%s/%s\n", id, cfg.ExpensesBucket, key)
}

func newEmailHandler(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*email.Handler, func()) {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	factory := backend.NewFactory(log)
	store, err := factory.NewRecordStore(ctx, *cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open record store")
	}
	ex, err := factory.NewExtractor(ctx, *cfg)
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}
	return email.NewHandler(ex, store), func() { store.Close() }
}

func runProcessEmail(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("process-email", flag.ExitOnError)
	file := fs.String("file", "", "Path or gs:// URI of a raw RFC 822 email")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	raw, err := readSource(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read email")
	}

	h, closeStore := newEmailHandler(ctx, cfg, log)
	defer closeStore()

	rec, err := h.ProcessEmail(ctx, raw)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to process email")
	}

	fmt.Printf("Saved expense %s: %s %s\n", rec.ID, rec.Merchant, rec.Amount.Decimal.String())
}

func runImportMbox(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("import-mbox", flag.ExitOnError)
	file := fs.String("file", "", "Path or gs:// URI of an mbox file")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	data, err := readSource(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read mbox")
	}

	h, closeStore := newEmailHandler(ctx, cfg, log)
	defer closeStore()

	n, err := importMbox(ctx, bytes.NewReader(data), h.ProcessEmail)
	if err != nil {
		log.Fatal().Err(err).Int("imported", n).Msg("Import stopped")
	}

	fmt.Printf("Imported %d messages from %s\n", n, *file)
}

// importMbox feeds every message of an mbox stream to process and stops at the
// first failure. It returns the number of messages processed.
func importMbox(ctx context.Context, r io.Reader, process func(context.Context, []byte) (*domain.ExpenseRecord, error)) (int, error) {
	mr := mbox.NewReader(r)
	n := 0
	for {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read message %d: %w", n+1, err)
		}

		raw, err := io.ReadAll(msg)
		if err != nil {
			return n, fmt.Errorf("read message %d: %w", n+1, err)
		}

		if _, err := process(ctx, raw); err != nil {
			return n, fmt.Errorf("process message %d: %w", n+1, err)
		}
		n++
	}
}

// readSource reads a local file or a gs:// object.
func readSource(ctx context.Context, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "gs://") {
		return os.ReadFile(src)
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.FetchFromGCS(ctx, src)
}

func runPublishEmail(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("publish-email", flag.ExitOnError)
	file := fs.String("file", "", "Path or gs:// URI of a raw RFC 822 email")
	messageID := fs.String("message-id", "", "Message ID (defaults to the file name)")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: -file is required")
	}
	if cfg.QueueBackend != config.QueueAMQP {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("publish-email requires QUEUE_BACKEND=amqp")
	}
	if *messageID == "" {
		*messageID = filepath.Base(*file)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	raw, err := readSource(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read email")
	}

	client, err := jobsamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to AMQP")
	}
	defer client.Close()

	job, err := publishEmail(ctx, client, *messageID, raw)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to publish email")
	}

	fmt.Printf("Queued job %s for message %s\n", job.JobID, *messageID)
}

// publishEmail wraps raw into a single-record event and publishes it.
func publishEmail(ctx context.Context, pub jobs.Publisher, messageID string, raw []byte) (*jobs.EmailEventJob, error) {
	rec, err := email.NewRecord(messageID, raw)
	if err != nil {
		return nil, err
	}

	job := &jobs.EmailEventJob{Event: email.Event{Records: []email.Record{rec}}}
	if err := pub.PublishEmailEvent(ctx, job); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	return job, nil
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local email file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer client.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := client.WriteObject(ctx, *bucketName, *objectName, data, gcs.WriteOptions{ContentType: "message/rfc822"}); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}
