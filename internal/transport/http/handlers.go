package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkraev/relay/internal/app"
	"github.com/mkraev/relay/internal/domain"
)

// API is the JSON request surface in front of the coordinator. It does
// shape-level binding only; all semantics live in the app package.
type API struct {
	Coord *app.Coordinator
}

func NewAPI(coord *app.Coordinator) *API {
	return &API{Coord: coord}
}

func (a *API) Register(r gin.IRouter) {
	r.POST("/createRoom", a.createRoom)
	r.POST("/sendActions", a.sendActions)
	r.GET("/rooms", a.listRooms)
	r.GET("/rooms/:id/last-sequence", a.getLastSequence)
	r.POST("/rooms/:id/last-sequence/clear", a.clearLastSequence)
	r.GET("/rooms/:id/history", a.getHistory)
	r.POST("/rooms/:id/history/clear", a.clearHistory)
	r.GET("/rooms/:id/clients", a.listClients)
}

type createRoomRequest struct {
	ID         string   `json:"id" binding:"required"`
	RoomTTLSec *float64 `json:"roomTtlSec"`
}

type sendActionsRequest struct {
	ID         string   `json:"id"`
	Actions    []string `json:"actions"`
	RoomTTLSec *float64 `json:"roomTtlSec"`
}

func (a *API) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "id is required"})
		return
	}
	receipt, err := a.Coord.CreateRoom(req.ID, req.RoomTTLSec)
	if err != nil {
		failInput(c, err)
		return
	}
	if receipt.Occupied {
		c.JSON(http.StatusOK, gin.H{"ok": false, "roomId": receipt.RoomID, "message": "Room already has clients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": receipt.RoomID})
}

func (a *API) sendActions(c *gin.Context) {
	var req sendActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad payload"})
		return
	}
	receipt, err := a.Coord.Publish(req.ID, req.Actions, req.RoomTTLSec)
	if err != nil {
		failInput(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": receipt.RoomID, "actions": receipt.Tokens})
}

func (a *API) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "rooms": a.Coord.ActiveRooms()})
}

func (a *API) getLastSequence(c *gin.Context) {
	id := c.Param("id")
	seq := a.Coord.LastSequence(id)
	if seq == nil {
		seq = []domain.ActionToken{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": id, "sequence": seq})
}

func (a *API) clearLastSequence(c *gin.Context) {
	id := c.Param("id")
	cleared := a.Coord.ClearLastSequence(id)
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": id, "cleared": cleared})
}

func (a *API) getHistory(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": id, "actions": a.Coord.HistoryTokens(id)})
}

func (a *API) clearHistory(c *gin.Context) {
	id := c.Param("id")
	removed := a.Coord.ClearHistory(id)
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": id, "removed": removed})
}

func (a *API) listClients(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"ok": true, "roomId": id, "clients": a.Coord.Subscribers(id)})
}

// failInput maps caller input errors to 400 responses. Token errors carry
// the offending list and the allowed vocabulary so the caller can
// self-correct.
func failInput(c *gin.Context, err error) {
	var invalid *domain.InvalidTokensError
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":      false,
			"error":   invalid.Error(),
			"invalid": invalid.Invalid,
			"allowed": invalid.Allowed,
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
}
