package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/lotlens/internal/testutil"
)

// RegisterUploadSteps registers processor setup and upload steps.
func (tc *TestContext) RegisterUploadSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the external processor prints:$`, tc.theProcessorPrints)
	sc.Step(`^the external processor prints (\d+) result paths$`, tc.theProcessorPrintsNPaths)
	sc.Step(`^the external processor fails with exit code (\d+) and stderr "([^"]*)"$`, tc.theProcessorFails)
	sc.Step(`^the lotlens server is running$`, tc.StartServer)

	sc.Step(`^I upload "([^"]*)"$`, func(name string) error { return tc.upload(name, false, true) })
	sc.Step(`^I upload "([^"]*)" as an additional batch$`, func(name string) error { return tc.upload(name, true, true) })
	sc.Step(`^I submit the upload form without a file$`, func() error { return tc.upload("", false, false) })

	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the response images should be "([^"]*)"$`, tc.theResponseImagesShouldBe)
	sc.Step(`^the response should contain (\d+) images$`, tc.theResponseShouldContainNImages)
	sc.Step(`^the response error should be "([^"]*)"$`, tc.theResponseErrorShouldBe)

	sc.Step(`^the processor should have been invoked (\d+) times?$`, tc.theProcessorShouldHaveBeenInvoked)
	sc.Step(`^the processor should not have been invoked$`, func() error { return tc.theProcessorShouldHaveBeenInvoked(0) })
	sc.Step(`^the archive flag of call (\d+) should be "(true|false)"$`, tc.theArchiveFlagShouldBe)
	sc.Step(`^the staging directory should be empty$`, tc.theStagingDirectoryShouldBeEmpty)
}

func (tc *TestContext) theProcessorPrints(doc *godog.DocString) error {
	return tc.setProcessor(testutil.FakeProcessorSpec{Stdout: doc.Content + "\n"})
}

func (tc *TestContext) theProcessorPrintsNPaths(n int) error {
	tc.batches++
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "results/b%d-%02d.jpg\n", tc.batches, i)
	}
	return tc.setProcessor(testutil.FakeProcessorSpec{Stdout: b.String()})
}

func (tc *TestContext) theProcessorFails(code int, stderr string) error {
	return tc.setProcessor(testutil.FakeProcessorSpec{ExitCode: code, Stderr: stderr})
}

func (tc *TestContext) upload(name string, additional, withFile bool) error {
	if tc.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if withFile {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			return err
		}
		if _, err := fw.Write([]byte("payload of " + name)); err != nil {
			return err
		}
	}
	if additional {
		_ = mw.WriteField("isAdditional", "true")
		if tc.Session != "" {
			_ = mw.WriteField("session", tc.Session)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, tc.HTTPServer.URL+"/process-images", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := tc.do(req); err != nil {
		return err
	}

	if !additional && tc.LastStatus == http.StatusOK {
		var resp struct {
			Session string `json:"session"`
		}
		if err := json.Unmarshal(tc.LastBody, &resp); err == nil {
			tc.Session = resp.Session
		}
	}
	return nil
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.HTTPServer.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	tc.LastStatus = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) theResponseStatusShouldBe(status int) error {
	if tc.LastStatus != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.LastStatus, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) responseImages() ([]string, error) {
	var resp struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(tc.LastBody, &resp); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	return resp.Images, nil
}

func (tc *TestContext) theResponseImagesShouldBe(list string) error {
	got, err := tc.responseImages()
	if err != nil {
		return err
	}
	want := []string{}
	if list != "" {
		want = strings.Split(list, ",")
	}
	if strings.Join(got, ",") != strings.Join(want, ",") || len(got) != len(want) {
		return fmt.Errorf("expected images %q, got %q", want, got)
	}
	return nil
}

func (tc *TestContext) theResponseShouldContainNImages(n int) error {
	got, err := tc.responseImages()
	if err != nil {
		return err
	}
	if len(got) != n {
		return fmt.Errorf("expected %d images, got %d", n, len(got))
	}
	return nil
}

func (tc *TestContext) theResponseErrorShouldBe(msg string) error {
	var resp map[string]any
	if err := json.Unmarshal(tc.LastBody, &resp); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	if resp["error"] != msg {
		return fmt.Errorf("expected error %q, got %v", msg, resp["error"])
	}
	if len(resp) != 1 {
		return fmt.Errorf("error body carries extra fields: %s", tc.LastBody)
	}
	return nil
}

func (tc *TestContext) theProcessorShouldHaveBeenInvoked(n int) error {
	calls, err := tc.Fake.ReadCalls()
	if err != nil {
		return err
	}
	if len(calls) != n {
		return fmt.Errorf("expected %d invocations, got %d", n, len(calls))
	}
	return nil
}

func (tc *TestContext) theArchiveFlagShouldBe(call int, flag string) error {
	calls, err := tc.Fake.ReadCalls()
	if err != nil {
		return err
	}
	if call < 1 || call > len(calls) {
		return fmt.Errorf("no call %d, only %d recorded", call, len(calls))
	}
	if got := calls[call-1][1]; got != flag {
		return fmt.Errorf("expected archive flag %s for call %d, got %s", flag, call, got)
	}
	return nil
}

func (tc *TestContext) theStagingDirectoryShouldBeEmpty() error {
	files, err := listFiles(tc.StagingDir)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		return fmt.Errorf("staging directory still holds %v", files)
	}
	return nil
}
