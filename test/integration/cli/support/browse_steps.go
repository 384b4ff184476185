package support

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/lotlens/internal/browse"
)

// RegisterBrowseSteps registers steps that drive a session's carousels.
func (tc *TestContext) RegisterBrowseSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a browse session should have been opened$`, tc.aSessionShouldHaveBeenOpened)
	sc.Step(`^the (initial|supplementary) carousel should hold (\d+) images?$`, tc.theCarouselShouldHold)
	sc.Step(`^I (advance|retreat) the (initial|supplementary) carousel$`, func(dir, sec string) error {
		return tc.move(dir, sec, 1)
	})
	sc.Step(`^I (advance|retreat) the (initial|supplementary) carousel (\d+) times$`, func(dir, sec string, n int) error {
		return tc.move(dir, sec, n)
	})
	sc.Step(`^the (initial|supplementary) carousel should show "([^"]*)" at index (-?\d+)$`, tc.theCarouselShouldShow)
	sc.Step(`^the (initial|supplementary) carousel index should be (-?\d+)$`, tc.theCarouselIndexShouldBe)
}

func (tc *TestContext) aSessionShouldHaveBeenOpened() error {
	if tc.Session == "" {
		return fmt.Errorf("no session in last initial response: %s", tc.LastBody)
	}
	return nil
}

func (tc *TestContext) snapshot() (browse.Snapshot, error) {
	var snap browse.Snapshot
	if err := tc.aSessionShouldHaveBeenOpened(); err != nil {
		return snap, err
	}
	req, err := http.NewRequest(http.MethodGet, tc.HTTPServer.URL+"/sessions/"+tc.Session, nil)
	if err != nil {
		return snap, err
	}
	if err := tc.do(req); err != nil {
		return snap, err
	}
	if tc.LastStatus != http.StatusOK {
		return snap, fmt.Errorf("get session: status %d: %s", tc.LastStatus, tc.LastBody)
	}
	err = json.Unmarshal(tc.LastBody, &snap)
	return snap, err
}

func section(snap browse.Snapshot, sec string) browse.SectionView {
	if sec == string(browse.SectionSupplementary) {
		return snap.Supplementary
	}
	return snap.Initial
}

func (tc *TestContext) move(dir, sec string, times int) error {
	if err := tc.aSessionShouldHaveBeenOpened(); err != nil {
		return err
	}
	for range times {
		url := fmt.Sprintf("%s/sessions/%s/%s/%s", tc.HTTPServer.URL, tc.Session, sec, dir)
		req, err := http.NewRequest(http.MethodPost, url, nil)
		if err != nil {
			return err
		}
		if err := tc.do(req); err != nil {
			return err
		}
		if tc.LastStatus != http.StatusOK {
			return fmt.Errorf("%s %s: status %d: %s", dir, sec, tc.LastStatus, tc.LastBody)
		}
	}
	return nil
}

func (tc *TestContext) theCarouselShouldHold(sec string, n int) error {
	snap, err := tc.snapshot()
	if err != nil {
		return err
	}
	if got := len(section(snap, sec).Images); got != n {
		return fmt.Errorf("expected %s carousel to hold %d images, got %d", sec, n, got)
	}
	return nil
}

func (tc *TestContext) theCarouselShouldShow(sec, image string, index int) error {
	snap, err := tc.snapshot()
	if err != nil {
		return err
	}
	view := section(snap, sec)
	if view.Index != index || view.Current != image {
		return fmt.Errorf("expected %s carousel at %d showing %q, got %d showing %q",
			sec, index, image, view.Index, view.Current)
	}
	return nil
}

func (tc *TestContext) theCarouselIndexShouldBe(sec string, index int) error {
	snap, err := tc.snapshot()
	if err != nil {
		return err
	}
	if got := section(snap, sec).Index; got != index {
		return fmt.Errorf("expected %s carousel index %d, got %d", sec, index, got)
	}
	return nil
}
