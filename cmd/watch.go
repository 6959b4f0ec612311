package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AzielCF/az-compare/core/config"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/infrastructure/page"
	"github.com/AzielCF/az-compare/pkg/ratelimit"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const writeSettle = 200 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile a saved listing page until interrupted",
	Long: `Run only the reconciliation engine over --document. Each completed pass
is written to --out when given, so the decorated page can be opened in a browser.`,
	Run: watchDocument,
}

func init() {
	watchCmd.Flags().String("document", "", `saved listing page to reconcile --document <path>`)
	watchCmd.Flags().String("out", "", `where the decorated page is written --out <path>`)
	watchCmd.Flags().String("location", "", "location reported when the page declares no canonical url")
	_ = watchCmd.MarkFlagRequired("document")
	rootCmd.AddCommand(watchCmd)
}

// documentWriter saves the decorated page once passes stop completing.
type documentWriter struct {
	save *ratelimit.Debouncer[struct{}]
}

func newDocumentWriter(doc *page.Document, out string) *documentWriter {
	return &documentWriter{save: ratelimit.NewDebouncer(writeSettle, func(struct{}) {
		if err := doc.Save(out); err != nil {
			logrus.Errorf("[WATCH] Failed to write %s: %v", out, err)
			return
		}
		logrus.Debugf("[WATCH] Decorated page written to %s", out)
	})}
}

func (w *documentWriter) Publish(e domainReconcile.Event) {
	if e.Type == domainReconcile.EventPassCompleted && e.Pass != nil && !e.Pass.Abandoned {
		w.save.Trigger(struct{}{})
	}
}

func watchDocument(cmd *cobra.Command, _ []string) {
	cfg := config.Global
	document, _ := cmd.Flags().GetString("document")
	out, _ := cmd.Flags().GetString("out")
	location, _ := cmd.Flags().GetString("location")

	// Writing over the watched file would trigger a reload for every pass.
	if out != "" && utils.SamePath(out, document) {
		logrus.Fatalln("[WATCH] --out must differ from --document")
	}

	interrupted, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// The engine outlives the signal long enough to report its session.
	ctx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()

	doc, err := page.Open(document, page.Options{Location: location})
	if err != nil {
		logrus.Fatalf("[WATCH] Failed to open %s: %v", document, err)
	}

	var writer *documentWriter
	var extra []domainReconcile.NotificationSink
	if out != "" {
		writer = newDocumentWriter(doc, out)
		extra = append(extra, writer)
	}

	svc, err := buildServices(ctx, cfg, extra...)
	if err != nil {
		logrus.Fatalf("[WATCH] Failed to initialize services: %v", err)
	}
	defer svc.close()

	engine, _, err := startEngine(ctx, cfg, svc, doc)
	if err != nil {
		logrus.Fatalf("[WATCH] Failed to start reconciliation: %v", err)
	}

	<-interrupted.Done()

	summaryCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if snapshot, err := engine.Snapshot(summaryCtx); err == nil {
		logrus.Infof("[WATCH] Stopping after %d passes, %s vendors decorated on %s",
			snapshot.Epoch.Passes, humanize.Comma(int64(snapshot.Epoch.Decorated)), snapshot.Epoch.Location)
	}
	engine.Stop()

	if writer != nil {
		writer.save.Flush()
	}
}
