package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/tilemint/tilemint-node/core/code"
	eventsdb "github.com/tilemint/tilemint-node/core/events"
)

type EventResponse struct {
	Type  string         `json:"type"`
	Value eventsdb.Event `json:"value"`
}

// BlockEventsResponse carries the events of one block.
type BlockEventsResponse struct {
	Height uint64          `json:"height"`
	Events []EventResponse `json:"events"`
}

func (s *Service) blockEvents(height uint64) BlockEventsResponse {
	response := BlockEventsResponse{Height: height, Events: []EventResponse{}}

	eventsDB := s.blockchain.GetEventsDB()
	if eventsDB == nil {
		return response
	}
	for _, event := range eventsDB.LoadEvents(uint32(height)) {
		response.Events = append(response.Events, EventResponse{Type: event.Type(), Value: event})
	}
	return response
}

func (s *Service) events(c *gin.Context) {
	height, err := strconv.ParseUint(c.DefaultQuery("height", "0"), 10, 32)
	if err != nil {
		badRequest(c, errors.Wrap(code.ErrDecode, "height"))
		return
	}
	if height == 0 {
		height = s.blockchain.Height()
	}
	if height > s.blockchain.Height() {
		c.JSON(http.StatusNotFound, errorBody(code.DecodeError, "block is not committed yet"))
		return
	}

	c.JSON(http.StatusOK, s.blockEvents(height))
}

// subscribe streams the events of every block committed after the
// connection opened.
func (s *Service) subscribe(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	last := s.blockchain.Height()
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		height := s.blockchain.Height()
		for ; last < height; last++ {
			if err := conn.WriteJSON(s.blockEvents(last + 1)); err != nil {
				s.logger.Debug("subscription closed", "err", err)
				return
			}
		}
	}
}
