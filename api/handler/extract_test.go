package handler

import (
	"net/http"
	"testing"

	"github.com/use-agent/webpilot/models"
)

func TestExtract_FromSession(t *testing.T) {
	sess := newFakeSession("s1")
	r := testRouter(testDeps(newFakePool(sess), &scriptedLLM{replies: []string{"42."}}))

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract", models.ExtractRequest{
		SessionID:   "s1",
		Instruction: "What is the answer?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.ExtractResponse
	decodeInto(t, w, &resp)
	if !resp.Success || resp.Output != "42." {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Sources) == 0 {
		t.Error("sources missing")
	}
	if sess.FullPage() {
		t.Error("snapshot mode should be restored after extraction")
	}
}

func TestExtract_FromURL(t *testing.T) {
	d := testDeps(newFakePool(), &scriptedLLM{replies: []string{"42."}})
	loader := d.Loader.(*fakeLoader)
	r := testRouter(d)

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract", models.ExtractRequest{
		URL:         "http://example.com/article",
		Instruction: "What is the answer?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.ExtractResponse
	decodeInto(t, w, &resp)
	if !resp.Success || resp.Output != "42." {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(loader.urls) != 1 || loader.urls[0] != "http://example.com/article" {
		t.Errorf("loader saw %v", loader.urls)
	}
}

func TestExtract_ExactlyOneTarget(t *testing.T) {
	r := testRouter(testDeps(newFakePool(newFakeSession("s1")), &scriptedLLM{}))

	for name, req := range map[string]models.ExtractRequest{
		"both":    {SessionID: "s1", URL: "http://example.com/", Instruction: "What?"},
		"neither": {Instruction: "What?"},
	} {
		t.Run(name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/v1/extract", req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}

			var resp models.ExtractResponse
			decodeInto(t, w, &resp)
			if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestExtract_SessionNotFound(t *testing.T) {
	r := testRouter(testDeps(newFakePool(), &scriptedLLM{}))

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract", models.ExtractRequest{
		SessionID:   "nope",
		Instruction: "What?",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestExtract_LoaderFailure(t *testing.T) {
	d := testDeps(newFakePool(), &scriptedLLM{})
	d.Loader.(*fakeLoader).err = models.NewAgentError(models.ErrCodeTimeout, "page load timed out", nil)
	r := testRouter(d)

	w := doJSON(t, r, http.MethodPost, "/api/v1/extract", models.ExtractRequest{
		URL:         "http://slow.example/",
		Instruction: "What?",
	})
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.ExtractResponse
	decodeInto(t, w, &resp)
	if resp.Error == nil || resp.Error.Code != models.ErrCodeTimeout {
		t.Errorf("error = %+v", resp.Error)
	}
	if resp.Timing == nil {
		t.Error("timing missing on the error path")
	}
}
