// Package gitwire implements the three smart-HTTP git operations
// hubcast needs to mirror refs without invoking a `git` binary:
// ls-remote, fetch-pack, and send-pack.
//
// No pkt-line or smart-HTTP library was available to build on, so
// this package talks the wire protocol directly over net/http (see
// DESIGN.md for why this is the one hand-rolled component).
package gitwire

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/abcxyz/pkg/logging"

	"github.com/LLNL/hubcast/pkg/hcerr"
)

// ZeroOID is the all-zero git object id denoting "ref absent".
const ZeroOID = "0000000000000000000000000000000000000000"

// RefMap maps a fully-qualified ref name to its object id.
type RefMap map[string]string

// Credentials carries optional HTTP basic-auth values for an
// operation. Both fields empty means no auth is sent.
type Credentials struct {
	Username string
	Password string
}

// Client performs git smart-HTTP operations. A zero-value Client uses
// http.DefaultClient.
type Client struct {
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) newRequest(method, url string, body io.Reader, creds Credentials) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if creds.Username != "" || creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}
	return req, nil
}

// LsRemote fetches the advertised ref set for service ("git-upload-pack"
// or "git-receive-pack") via the info/refs smart-HTTP handshake.
func (c *Client) LsRemote(ctx context.Context, url, service string, creds Credentials) (RefMap, error) {
	infoURL := strings.TrimSuffix(url, "/") + "/info/refs?service=" + service

	req, err := c.newRequest(http.MethodGet, infoURL, nil, creds)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/x-"+service+"-advertisement")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, hcerr.NewGitWireError("ls-remote request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, hcerr.NewGitWireError(fmt.Sprintf("ls-remote auth denied: %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, hcerr.NewGitWireError(fmt.Sprintf("ls-remote unexpected status %d", resp.StatusCode), nil)
	}

	return parseRefAdvertisement(resp.Body, service)
}

// parseRefAdvertisement reads the pkt-line ref advertisement that
// follows the service announcement line.
func parseRefAdvertisement(r io.Reader, service string) (RefMap, error) {
	br := bufio.NewReader(r)

	// First pkt-line is "# service=git-upload-pack\n", then a flush.
	first, ok, err := readPktLine(br)
	if err != nil {
		return nil, hcerr.NewGitWireError("failed to read service announcement", err)
	}
	if ok && strings.Contains(string(first), "service="+service) {
		// consume the flush that follows the announcement line
		if _, _, err := readPktLine(br); err != nil {
			return nil, hcerr.NewGitWireError("failed to read post-announcement flush", err)
		}
	}

	refs := make(RefMap)
	first2 := true
	for {
		line, ok, err := readPktLine(br)
		if err != nil {
			return nil, hcerr.NewGitWireError("failed to read ref advertisement", err)
		}
		if !ok {
			break
		}

		text := string(line)
		text = strings.TrimRight(text, "\n")

		if first2 {
			first2 = false
			// First ref line may carry a NUL-separated capabilities list.
			if idx := strings.IndexByte(text, 0); idx >= 0 {
				text = text[:idx]
			}
		}

		parts := strings.SplitN(text, " ", 2)
		if len(parts) != 2 {
			continue
		}
		oid, ref := parts[0], parts[1]
		if ref == "capabilities^{}" {
			continue
		}
		refs[ref] = oid
	}

	return refs, nil
}

// FetchPack negotiates a packfile containing wantSHA, given the
// haveSHAs already present on the requester's side, and returns the
// raw pack bytes.
func (c *Client) FetchPack(ctx context.Context, url, wantSHA string, haveSHAs []string, creds Credentials) ([]byte, error) {
	var buf bytes.Buffer
	if err := writePktLine(&buf, []byte(fmt.Sprintf("want %s multi_ack_detailed side-band-64k ofs-delta\n", wantSHA))); err != nil {
		return nil, hcerr.NewGitWireError("failed to write want line", err)
	}
	if err := writeFlushPkt(&buf); err != nil {
		return nil, hcerr.NewGitWireError("failed to write want flush", err)
	}
	for _, have := range haveSHAs {
		if err := writePktLine(&buf, []byte(fmt.Sprintf("have %s\n", have))); err != nil {
			return nil, hcerr.NewGitWireError("failed to write have line", err)
		}
	}
	if err := writePktLine(&buf, []byte("done\n")); err != nil {
		return nil, hcerr.NewGitWireError("failed to write done line", err)
	}

	uploadURL := strings.TrimSuffix(url, "/") + "/git-upload-pack"
	req, err := c.newRequest(http.MethodPost, uploadURL, &buf, creds)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
	req.Header.Set("Accept", "application/x-git-upload-pack-result")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, hcerr.NewGitWireError("fetch-pack request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, hcerr.NewGitWireError(fmt.Sprintf("fetch-pack unexpected status %d", resp.StatusCode), nil)
	}

	return readPackfileStream(ctx, resp.Body)
}

// Side-band-64k channel numbers (protocol-common.txt "side-band-64k").
const (
	sidebandData     = 1
	sidebandProgress = 2
	sidebandError    = 3
)

// readPackfileStream consumes the upload-pack response: a sequence of
// negotiation pkt-lines (NAK/ACK) followed by the packfile itself,
// which "want ..." negotiated under side-band-64k arrives as a series
// of pkt-lines each prefixed with a 1-byte channel number. Channel 1
// carries packfile bytes, channel 2 carries progress text (logged,
// not returned), and channel 3 carries a fatal error message.
func readPackfileStream(ctx context.Context, r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)

	for {
		line, ok, err := readPktLine(br)
		if err != nil {
			return nil, hcerr.NewGitWireError("failed to read negotiation line", err)
		}
		if !ok {
			return nil, hcerr.NewGitWireError("fetch-pack response ended before packfile", nil)
		}
		text := strings.TrimRight(string(line), "\n")
		if text == "NAK" || (strings.HasPrefix(text, "ACK") && !strings.Contains(text, "continue")) {
			break
		}
	}

	logger := logging.FromContext(ctx)

	var pack bytes.Buffer
	for {
		line, ok, err := readPktLine(br)
		if err != nil {
			return nil, hcerr.NewGitWireError("failed to read side-band packfile stream", err)
		}
		if !ok {
			break // flush: end of side-band stream
		}
		if len(line) == 0 {
			continue
		}

		switch band, payload := line[0], line[1:]; band {
		case sidebandData:
			pack.Write(payload)
		case sidebandProgress:
			logger.DebugContext(ctx, "upload-pack progress", "message", strings.TrimRight(string(payload), "\n"))
		case sidebandError:
			return nil, hcerr.NewGitWireError("upload-pack reported error: "+strings.TrimRight(string(payload), "\n"), nil)
		default:
			return nil, hcerr.NewGitWireError(fmt.Sprintf("unrecognized side-band channel %d", band), nil)
		}
	}

	if pack.Len() == 0 {
		return nil, hcerr.NewGitWireError("fetch-pack response contained no packfile data", nil)
	}
	return pack.Bytes(), nil
}

// SendPack sends a single ref-update command (fromSHA to toSHA on
// ref) with the report-status capability, followed by packfile, and
// surfaces any `ng` line in the report-status response as an error.
// toSHA == ZeroOID deletes the ref; packfile may be empty in that case.
func (c *Client) SendPack(ctx context.Context, url, ref, fromSHA, toSHA string, packfile []byte, creds Credentials) error {
	var buf bytes.Buffer
	cmd := fmt.Sprintf("%s %s %s\x00report-status\n", fromSHA, toSHA, ref)
	if err := writePktLine(&buf, []byte(cmd)); err != nil {
		return hcerr.NewGitWireError("failed to write update command", err)
	}
	if err := writeFlushPkt(&buf); err != nil {
		return hcerr.NewGitWireError("failed to write update-command flush", err)
	}
	buf.Write(packfile)

	receiveURL := strings.TrimSuffix(url, "/") + "/git-receive-pack"
	req, err := c.newRequest(http.MethodPost, receiveURL, &buf, creds)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-git-receive-pack-request")
	req.Header.Set("Accept", "application/x-git-receive-pack-result")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return hcerr.NewGitWireError("send-pack request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return hcerr.NewGitWireError(fmt.Sprintf("send-pack auth denied: %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return hcerr.NewGitWireError(fmt.Sprintf("send-pack unexpected status %d", resp.StatusCode), nil)
	}

	return parseReportStatus(resp.Body)
}

// parseReportStatus reads the receive-pack report-status response and
// returns an error if the overall status or the single command's
// status line is "ng".
func parseReportStatus(r io.Reader) error {
	br := bufio.NewReader(r)

	unpackOK := false
	for {
		line, ok, err := readPktLine(br)
		if err != nil {
			return hcerr.NewGitWireError("failed to read report-status", err)
		}
		if !ok {
			break
		}
		text := strings.TrimRight(string(line), "\n")

		switch {
		case text == "unpack ok":
			unpackOK = true
		case strings.HasPrefix(text, "unpack "):
			return hcerr.NewGitWireError("unpack failed: "+text, nil)
		case strings.HasPrefix(text, "ng "):
			return hcerr.NewGitWireError("ref update rejected: "+text, nil)
		case strings.HasPrefix(text, "ok "):
			// command succeeded
		}
	}

	if !unpackOK {
		return hcerr.NewGitWireError("receive-pack report-status missing \"unpack ok\"", nil)
	}
	return nil
}
