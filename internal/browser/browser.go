package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"pricecrawler/internal/scrape"
)

// Provider opens chromedp-backed page sessions. Direct mode launches a local
// headless Chrome, optionally through a rotating proxy; a non-empty remoteWS
// connects to a remote browser endpoint instead (used after escalation).
type Provider struct {
	log     *slog.Logger
	proxies *Pool
}

func NewProvider(log *slog.Logger, proxyList []string) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{log: log, proxies: NewPool(proxyList)}
}

func (p *Provider) Open(ctx context.Context, rawURL string, remoteWS string) (scrape.Session, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if remoteWS != "" {
		p.log.Debug("connecting to remote browser", "url", rawURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, remoteWS)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts, chromedp.IgnoreCertErrors)
		if proxy := p.proxies.Next(); proxy != "" {
			p.log.Debug("direct launch via proxy", "proxy", proxy)
			opts = append(opts, chromedp.ProxyServer(proxy))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &session{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// Abort non-essential resource loads and record the main document's
	// status before the page settles.
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go s.routeRequest(e)
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				s.statusOnce.Do(func() {
					s.status = int(e.Response.Status)
				})
			}
		}
	})

	var location string
	err := chromedp.Run(tabCtx,
		fetch.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	s.url = location

	if s.status == 403 || s.status == 429 {
		s.Close()
		return nil, &scrape.AccessDeniedError{URL: rawURL, Status: s.status}
	}

	return s, nil
}

type session struct {
	ctx    context.Context
	cancel func()
	url    string

	statusOnce sync.Once
	status     int

	doc *goquery.Document
}

var blockedResources = map[network.ResourceType]bool{
	network.ResourceTypeImage: true,
	network.ResourceTypeMedia: true,
	network.ResourceTypeFont:  true,
}

func (s *session) routeRequest(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(s.ctx)
	ectx := cdp.WithExecutor(s.ctx, c.Target)
	if blockedResources[e.ResourceType] {
		_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
		return
	}
	_ = fetch.ContinueRequest(e.RequestID).Do(ectx)
}

func (s *session) Document() (*goquery.Document, error) {
	if s.doc != nil {
		return s.doc, nil
	}
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	s.doc = doc
	return doc, nil
}

func (s *session) URL() string { return s.url }

func (s *session) Close() { s.cancel() }
