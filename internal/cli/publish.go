package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shaiso/OrderFlow/internal/domain"
	"github.com/shaiso/OrderFlow/internal/mq"
)

// inboundItem — позиция в публикуемом сообщении. Цена уходит
// JSON-числом в том виде, в каком её ввели.
type inboundItem struct {
	ProductName string      `json:"productName"`
	UnitPrice   json.Number `json:"unitPrice"`
	Quantity    int         `json:"quantity"`
}

type inboundOrder struct {
	ExternalID string        `json:"externalId"`
	Items      []inboundItem `json:"items"`
}

// NewPublishCmd создаёт команду публикации входящего заказа.
func NewPublishCmd(env *Env) *cobra.Command {
	var externalID string
	var items []string
	var file string
	var skipValidation bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an inbound order message",
		Long: `Publish an order to the inbound exchange.

The order is built from --external-id and repeatable --item NAME:PRICE:QTY
flags, or read as JSON from --file ("-" for stdin).`,
		Example: `  orderctl publish --external-id EXT-1 --item "Widget:10.00:2" --item "Bolt:0.10:3"
  orderctl publish --file order.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			var err error

			switch {
			case file != "" && (externalID != "" || len(items) > 0):
				return fmt.Errorf("--file cannot be combined with --external-id or --item")
			case file != "":
				body, err = readMessageFile(file)
			default:
				body, err = buildMessage(externalID, items)
			}
			if err != nil {
				return err
			}

			req, err := decodeRequest(body)
			if err != nil {
				return err
			}
			if !skipValidation {
				if err := req.Validate(); err != nil {
					return fmt.Errorf("invalid order: %w", err)
				}
			}

			cfg, err := env.Config()
			if err != nil {
				return err
			}
			out := env.Output()
			topo := cfg.RabbitMQ.Topology

			conn, err := mq.NewConnection(cfg.RabbitMQ.URL, env.Logger(cfg))
			if err != nil {
				return fmt.Errorf("connect rabbitmq: %w", err)
			}
			defer conn.Close()

			publisher := mq.NewPublisher(conn, env.Logger(cfg))
			messageID, err := publisher.Publish(cmd.Context(), topo.InboundExchange, topo.InboundRoutingKey, "", body)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order published: %s", req.ExternalID))
			out.Print(
				[]string{"MESSAGE_ID", "EXTERNAL_ID", "ITEMS", "EXCHANGE", "ROUTING_KEY"},
				[][]string{{messageID, req.ExternalID, strconv.Itoa(len(req.Items)), string(topo.InboundExchange), string(topo.InboundRoutingKey)}},
				map[string]string{"messageId": messageID, "externalId": req.ExternalID},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&externalID, "external-id", "", "External order ID")
	cmd.Flags().StringArrayVar(&items, "item", nil, "Order item as NAME:PRICE:QTY (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to order JSON (- for stdin)")
	cmd.Flags().BoolVar(&skipValidation, "no-validate", false, "Publish without local validation")

	return cmd
}

// parseItem разбирает NAME:PRICE:QTY. Имя может содержать двоеточия.
func parseItem(s string) (inboundItem, error) {
	qtyIdx := strings.LastIndex(s, ":")
	if qtyIdx < 0 {
		return inboundItem{}, fmt.Errorf("invalid item format %q, expected NAME:PRICE:QTY", s)
	}
	priceIdx := strings.LastIndex(s[:qtyIdx], ":")
	if priceIdx < 0 {
		return inboundItem{}, fmt.Errorf("invalid item format %q, expected NAME:PRICE:QTY", s)
	}

	name := s[:priceIdx]
	priceStr := strings.TrimSpace(s[priceIdx+1 : qtyIdx])
	qtyStr := strings.TrimSpace(s[qtyIdx+1:])

	if _, err := decimal.NewFromString(priceStr); err != nil {
		return inboundItem{}, fmt.Errorf("invalid price in %q: %w", s, err)
	}
	qty, err := strconv.Atoi(qtyStr)
	if err != nil {
		return inboundItem{}, fmt.Errorf("invalid quantity in %q: %w", s, err)
	}

	return inboundItem{
		ProductName: name,
		UnitPrice:   json.Number(priceStr),
		Quantity:    qty,
	}, nil
}

func buildMessage(externalID string, items []string) ([]byte, error) {
	msg := inboundOrder{ExternalID: externalID, Items: make([]inboundItem, 0, len(items))}
	for _, s := range items {
		item, err := parseItem(s)
		if err != nil {
			return nil, err
		}
		msg.Items = append(msg.Items, item)
	}
	return json.Marshal(msg)
}

func readMessageFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// decodeRequest проверяет, что тело декодируется так же, как его
// прочтёт order-ingestor.
func decodeRequest(body []byte) (domain.OrderRequest, error) {
	var req domain.OrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.OrderRequest{}, fmt.Errorf("decode order: %w", err)
	}
	return req, nil
}
