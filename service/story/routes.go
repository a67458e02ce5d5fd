package story

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var mentionPattern = regexp.MustCompile(`@\w+`)

type StoryHandler struct {
	db *gorm.DB
}

func NewStoryHandler(db *gorm.DB) *StoryHandler {
	return &StoryHandler{db: db}
}

func (h *StoryHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stories", utils.AuthMiddleware(h.CreateStory)).Methods("POST")
	router.HandleFunc("/stories/{userId}", h.GetUserStories).Methods("GET")
}

// CreateStory accepts multipart form data with an optional text content
// field and an optional media file. Mentions are extracted from the text.
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(utils.MaxMediaSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	content := r.FormValue("content")

	var mediaURL, mediaType string
	if file, header, err := r.FormFile("media"); err == nil {
		defer file.Close()
		mediaURL, mediaType, err = utils.SaveMedia(file, header, utils.StoryPath)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if content == "" && mediaURL == "" {
		utils.WriteError(w, http.StatusBadRequest, "A story needs text or a media file")
		return
	}

	story := models.Story{
		UserID:    userID,
		Content:   content,
		Media:     mediaURL,
		MediaType: mediaType,
		Mentions:  strings.Join(mentionPattern.FindAllString(content, -1), ", "),
	}
	if err := h.db.Create(&story).Error; err != nil {
		if mediaURL != "" {
			utils.DeleteMedia(mediaURL)
		}
		logrus.WithError(err).Error("story: create failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error creating story")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, story)
}

// GetUserStories lists a user's stories still inside the visibility
// window. Expired rows are filtered here even before the sweep removes
// them.
func (h *StoryHandler) GetUserStories(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	cutoff := time.Now().Add(-models.StoryTTLHours * time.Hour)

	var stories []models.Story
	if err := h.db.Preload("User").
		Where("user_id = ? AND created_at > ?", userID, cutoff).
		Order("created_at ASC").
		Find(&stories).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving stories")
		return
	}

	utils.WriteJSON(w, http.StatusOK, stories)
}
