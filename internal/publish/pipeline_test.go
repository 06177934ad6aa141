package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/ebooklister/ebooklister/internal/etsyapi"
	"github.com/ebooklister/ebooklister/internal/metadata"
	"github.com/ebooklister/ebooklister/internal/scraper"
)

type fakeResolver struct{ err error }

func (f fakeResolver) Resolve(_ context.Context, pageURL string) (*scraper.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &scraper.Target{SourceURL: pageURL, Title: "Pride and Prejudice", DownloadURL: "https://src.example/download/xyz"}, nil
}

type fakeDownloader struct {
	fetched string
	removed []string
}

func (f *fakeDownloader) Fetch(_ context.Context, pdfURL, title string) (string, error) {
	f.fetched = pdfURL
	return "/downloads/Pride_and_Prejudice.pdf", nil
}

func (f *fakeDownloader) Remove(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

type fakeBooks struct {
	book *metadata.Book
	err  error
}

func (f fakeBooks) SearchByTitle(context.Context, string) (*metadata.Book, error) {
	return f.book, f.err
}

type fakeMarket struct {
	calls     []string
	input     etsyapi.ListingInput
	uploadErr error
}

func (f *fakeMarket) GetMe(context.Context) (*etsyapi.User, error) {
	f.calls = append(f.calls, "me")
	return &etsyapi.User{UserID: 1, ShopID: 456}, nil
}

func (f *fakeMarket) CreateListing(_ context.Context, shopID string, in etsyapi.ListingInput) (*etsyapi.Listing, error) {
	f.calls = append(f.calls, "listing:"+shopID)
	f.input = in
	return &etsyapi.Listing{ListingID: 777, Title: in.Title, State: "draft"}, nil
}

func (f *fakeMarket) UploadListingImageFromURL(_ context.Context, shopID, listingID, imageURL string) (*etsyapi.ListingImage, error) {
	f.calls = append(f.calls, "image:"+listingID)
	return &etsyapi.ListingImage{ListingImageID: 11}, nil
}

func (f *fakeMarket) UploadListingFile(_ context.Context, shopID, listingID, localPath string) (*etsyapi.ListingFile, error) {
	f.calls = append(f.calls, "file:"+localPath)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &etsyapi.ListingFile{ListingFileID: 22, Filename: "Pride_and_Prejudice.pdf"}, nil
}

func TestRunPublishesListing(t *testing.T) {
	t.Parallel()

	downloads := &fakeDownloader{}
	market := &fakeMarket{}
	p := &Pipeline{
		Resolver:   fakeResolver{},
		Downloader: downloads,
		Books: fakeBooks{book: &metadata.Book{
			Title:      "Pride and Prejudice",
			Authors:    []string{"Jane Austen"},
			Subjects:   []string{"Fiction"},
			CoverImage: "https://covers.example/b/id/1-L.jpg",
		}},
		Marketplace: market,
		Pace:        -1,
	}

	res, err := p.Run(context.Background(), "https://src.example/pride.html")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.JobID == "" || res.ShopID != "456" || res.ListingID != 777 || res.ImageID != 11 || res.FileID != 22 {
		t.Fatalf("Result = %+v", res)
	}
	if res.PDF != "Pride_and_Prejudice.pdf" {
		t.Fatalf("PDF = %q", res.PDF)
	}
	want := []string{"me", "listing:456", "image:777", "file:/downloads/Pride_and_Prejudice.pdf"}
	if len(market.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", market.calls, want)
	}
	for i := range want {
		if market.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", market.calls, want)
		}
	}
	if len(market.input.Tags) != 1 || market.input.Tags[0] != "fiction" {
		t.Fatalf("Tags = %v", market.input.Tags)
	}
	if downloads.fetched != "https://src.example/download/xyz" {
		t.Fatalf("fetched = %q", downloads.fetched)
	}
	if len(downloads.removed) != 1 || downloads.removed[0] != "Pride_and_Prejudice.pdf" {
		t.Fatalf("removed = %v", downloads.removed)
	}
}

type recordingSink struct{ events []Event }

func (r *recordingSink) Emit(ev Event) { r.events = append(r.events, ev) }

func (r *recordingSink) trail() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Step+":"+ev.Status)
	}
	return out
}

func TestRunEmitsProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		books  fakeBooks
		market *fakeMarket
		want   []string
	}{
		{
			name:   "with cover",
			books:  fakeBooks{book: &metadata.Book{Title: "Emma", CoverImage: "https://covers.example/e.jpg"}},
			market: &fakeMarket{},
			want: []string{":started", "resolve:done", "fetch:done", "metadata:done", "shop:done",
				"listing:done", "image:done", "file:done", "cleanup:finished"},
		},
		{
			name:   "upload failure",
			books:  fakeBooks{err: metadata.ErrBookNotFound},
			market: &fakeMarket{uploadErr: &etsyapi.APIError{StatusCode: 500}},
			want:   []string{":started", "resolve:done", "fetch:done", "metadata:done", "shop:done", "listing:done", "file:failed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			p := &Pipeline{
				Resolver:    fakeResolver{},
				Downloader:  &fakeDownloader{},
				Books:       tt.books,
				Marketplace: tt.market,
				Events:      sink,
				Pace:        -1,
			}
			res, _ := p.Run(context.Background(), "https://src.example/x")

			got := sink.trail()
			if len(got) != len(tt.want) {
				t.Fatalf("events = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("events = %v, want %v", got, tt.want)
				}
			}
			jobID := sink.events[0].JobID
			for _, ev := range sink.events {
				if ev.JobID != jobID || jobID == "" {
					t.Fatalf("event %+v has job id %q, want %q", ev, ev.JobID, jobID)
				}
			}
			last := sink.events[len(sink.events)-1]
			switch last.Status {
			case StatusFinished:
				if last.Result != res || res.JobID != jobID {
					t.Fatalf("finished event result = %+v", last.Result)
				}
			case StatusFailed:
				if last.Error == "" || last.Title != "Pride and Prejudice" {
					t.Fatalf("failed event = %+v", last)
				}
			}
		})
	}
}

func TestRunWithoutMetadataUsesConfiguredShop(t *testing.T) {
	t.Parallel()

	market := &fakeMarket{}
	p := &Pipeline{
		Resolver:    fakeResolver{},
		Downloader:  &fakeDownloader{},
		Books:       fakeBooks{err: metadata.ErrBookNotFound},
		Marketplace: market,
		ShopID:      "999",
		Pace:        -1,
	}
	res, err := p.Run(context.Background(), "https://src.example/pride.html")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ImageID != 0 || market.calls[0] != "listing:999" {
		t.Fatalf("calls = %v result = %+v", market.calls, res)
	}
	if market.input.Tags != nil {
		t.Fatalf("Tags = %v, want configured defaults", market.input.Tags)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	t.Run("resolve", func(t *testing.T) {
		downloads := &fakeDownloader{}
		p := &Pipeline{
			Resolver:    fakeResolver{err: scraper.ErrNoPreviewAvailable},
			Downloader:  downloads,
			Books:       fakeBooks{},
			Marketplace: &fakeMarket{},
			Pace:        -1,
		}
		_, err := p.Run(context.Background(), "https://src.example/x")
		stepErr, ok := errors.AsType[*StepError](err)
		if !ok || stepErr.Step != StepResolve || !errors.Is(err, scraper.ErrNoPreviewAvailable) {
			t.Fatalf("error = %v", err)
		}
		if downloads.fetched != "" {
			t.Fatal("fetch ran after failed resolve")
		}
	})

	t.Run("file upload keeps pdf", func(t *testing.T) {
		downloads := &fakeDownloader{}
		p := &Pipeline{
			Resolver:    fakeResolver{},
			Downloader:  downloads,
			Books:       fakeBooks{book: &metadata.Book{Title: "Pride and Prejudice"}},
			Marketplace: &fakeMarket{uploadErr: &etsyapi.APIError{StatusCode: 413}},
			Pace:        -1,
		}
		_, err := p.Run(context.Background(), "https://src.example/x")
		stepErr, ok := errors.AsType[*StepError](err)
		if !ok || stepErr.Step != StepFile || !errors.Is(err, etsyapi.ErrAPI) {
			t.Fatalf("error = %v", err)
		}
		if len(downloads.removed) != 0 {
			t.Fatalf("removed = %v after failed upload", downloads.removed)
		}
	})
}

func TestPauseHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Pipeline{}
	if err := p.pause(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("pause() error = %v", err)
	}
}
