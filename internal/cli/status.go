package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/requests"
	"github.com/hydrocred/hydrocred/internal/server/handlers"
)

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Show the status of a production request",
	Long: `Query a running server for a production request.

The session token is taken from --token or the HYDROCRED_TOKEN environment variable.

Example:
  hydrocredctl status 42 --server http://localhost:8080 --token "$(hydrocredctl token ...)"`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	serverURL    string
	sessionToken string
)

func init() {
	statusCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Server base URL")
	statusCmd.Flags().StringVarP(&sessionToken, "token", "t", "", "Session token (default $HYDROCRED_TOKEN)")
}

func newAPIClient(baseURL, token string, httpClient *http.Client) *resty.Client {
	var client *resty.Client
	if httpClient != nil {
		client = resty.NewWithClient(httpClient)
	} else {
		client = resty.New()
	}
	return client.
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
}

// fetchRequest returns the request, or an error carrying the server's error message.
func fetchRequest(client *resty.Client, requestID int64) (handlers.RequestResponse, error) {
	var (
		out    handlers.RequestResponse
		errOut api.ErrorResponse
	)
	res, err := client.R().
		SetPathParam("requestId", strconv.FormatInt(requestID, 10)).
		SetResult(&out).
		SetError(&errOut).
		Get("/v1/requests/{requestId}")
	if err != nil {
		return out, fmt.Errorf("request failed: %w", err)
	}
	if res.IsError() {
		if len(errOut.Errors) > 0 {
			return out, fmt.Errorf("%s (%d): %s", errOut.Errors[0].ErrorCodeText, res.StatusCode(), errOut.Errors[0].ErrorCodeMessage)
		}
		return out, fmt.Errorf("server returned %s", res.Status())
	}
	return out, nil
}

func printRequest(w io.Writer, r handlers.RequestResponse) {
	statusColor := color.New(color.FgYellow)
	switch r.Status {
	case requests.StatusMinted:
		statusColor = color.New(color.FgGreen)
	case requests.StatusRejected:
		statusColor = color.New(color.FgRed)
	case requests.StatusCertified:
		statusColor = color.New(color.FgCyan)
	}

	fmt.Fprintf(w, "request:     %d\n", r.RequestID)
	fmt.Fprintf(w, "status:      %s\n", statusColor.Sprint(r.Status))
	fmt.Fprintf(w, "producer:    %s (%s)\n", r.Producer, r.ProducerJurisdiction)
	fmt.Fprintf(w, "amount:      %d\n", r.Amount)
	fmt.Fprintf(w, "fingerprint: %s\n", r.EvidenceFingerprint)
	if r.Certifier != "" {
		fmt.Fprintf(w, "certifier:   %s\n", r.Certifier)
	}
	if r.Expiry != nil {
		fmt.Fprintf(w, "expiry:      %s\n", r.Expiry.Format(time.RFC3339))
	}
	if r.RejectionReason != "" {
		fmt.Fprintf(w, "rejected:    %s\n", r.RejectionReason)
	}
	if r.Settlement != nil {
		fmt.Fprintf(w, "settlement:  %s tx %s block %d\n", r.Settlement.Ref, r.Settlement.TransactionHash, r.Settlement.BlockNumber)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return fmt.Errorf("invalid request id %q", args[0])
	}
	token := sessionToken
	if token == "" {
		token = os.Getenv("HYDROCRED_TOKEN")
	}
	if token == "" {
		return fmt.Errorf("a session token is required (--token or HYDROCRED_TOKEN)")
	}

	r, err := fetchRequest(newAPIClient(serverURL, token, nil), id)
	if err != nil {
		color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "✗ %v\n", err)
		return err
	}
	printRequest(cmd.OutOrStdout(), r)
	return nil
}
