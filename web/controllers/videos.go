package controllers

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xclusive3d/utils"
	"xclusive3d/web/db"
)

const (
	uploadURLTTL   = 10 * time.Minute
	downloadURLTTL = 7 * 24 * time.Hour
)

type uploadURLRequest struct {
	UserID      uint   `json:"userId" binding:"required"`
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType"`
	Credits     int64  `json:"credits"`
}

// UploadURL debits the conversion cost and hands back a presigned PUT URL.
// A first conversion is free when the account still has its trial flag.
func (a *API) UploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and fileName are required"})
		return
	}
	if req.ContentType == "" {
		req.ContentType = "video/mp4"
	}

	var user db.User
	if err := a.DB.First(&user, req.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	usedFreeConversion := false
	if user.HasFreeConversion {
		result := a.DB.Model(&db.User{}).
			Where("id = ? AND has_free_conversion = ?", user.ID, true).
			Update("has_free_conversion", false)
		usedFreeConversion = result.Error == nil && result.RowsAffected > 0
	}

	creditsCharged := req.Credits
	if usedFreeConversion {
		creditsCharged = 0
	} else if req.Credits > 0 {
		err := a.DB.Transaction(func(tx *gorm.DB) error {
			var wallet db.Wallet
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ?", user.ID).First(&wallet).Error; err != nil {
				return err
			}
			if wallet.Balance < req.Credits {
				return fmt.Errorf("Insufficient credits. Required: %d, Available: %d", req.Credits, wallet.Balance)
			}
			return tx.Model(&wallet).Update("balance", gorm.Expr("balance - ?", req.Credits)).Error
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	key := fmt.Sprintf("uploads/%d_%s", time.Now().Unix(), req.FileName)
	url, err := a.Store.UploadURL(c.Request.Context(), key, req.ContentType, uploadURLTTL)
	if err != nil {
		// The debit already happened; refund it rather than leave the
		// customer short with nothing uploaded.
		if creditsCharged > 0 {
			a.DB.Model(&db.Wallet{}).Where("user_id = ?", user.ID).
				Update("balance", gorm.Expr("balance + ?", creditsCharged))
		}
		log.Error().Err(err).Msg("presign upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadUrl":          url,
		"key":                key,
		"creditsCharged":     creditsCharged,
		"usedFreeConversion": usedFreeConversion,
	})
}

type saveMetadataRequest struct {
	UserID           uint   `json:"userId" binding:"required"`
	Key              string `json:"key" binding:"required"`
	OriginalFileName string `json:"originalFileName" binding:"required"`
	FileSize         string `json:"fileSize"`
	LengthInSeconds  int    `json:"lengthInSeconds"`
	ConversionFormat string `json:"conversionFormat"`
	Quality          string `json:"quality"`
	CreditsUsed      int64  `json:"creditsUsed"`
}

// SaveMetadata records the uploaded video and confirms by email.
func (a *API) SaveMetadata(c *gin.Context) {
	var req saveMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, key and originalFileName are required"})
		return
	}

	var user db.User
	if err := a.DB.First(&user, req.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	video := db.Video{
		UserID:           req.UserID,
		OriginalFileName: req.OriginalFileName,
		Key:              req.Key,
		FileSize:         req.FileSize,
		LengthInSeconds:  req.LengthInSeconds,
		ConversionFormat: req.ConversionFormat,
		Quality:          req.Quality,
		CreditsUsed:      req.CreditsUsed,
		Status:           "uploaded",
	}
	if err := a.DB.Create(&video).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save video"})
		return
	}

	a.Mail.SendUploadConfirmation(user.Email, user.FirstName, video.OriginalFileName)
	c.JSON(http.StatusCreated, gin.H{"success": true, "videoId": video.ID})
}

type conversionCallbackRequest struct {
	VideoID      uint   `json:"videoId" binding:"required"`
	Status       string `json:"status" binding:"required,oneof=queued processing completed failed"`
	Progress     int    `json:"progress"`
	ConvertedKey string `json:"convertedKey"`
	ErrorMessage string `json:"errorMessage"`
}

// ConversionCallback is hit by the conversion worker. It is gated by the
// shared registration key, not a user session.
func (a *API) ConversionCallback(c *gin.Context) {
	if c.Param("regkey") != utils.Regkey() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid registration key"})
		return
	}

	var req conversionCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "videoId and a valid status are required"})
		return
	}

	var video db.Video
	if err := a.DB.First(&video, req.VideoID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}

	updates := map[string]interface{}{
		"status":   req.Status,
		"progress": req.Progress,
	}

	switch req.Status {
	case "completed":
		if req.ConvertedKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "convertedKey is required for completed conversions"})
			return
		}
		updates["converted_key"] = req.ConvertedKey
		updates["progress"] = 100
	case "failed":
		updates["error_message"] = req.ErrorMessage
	}

	if err := a.DB.Model(&video).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update video"})
		return
	}

	if req.Status == "completed" {
		var user db.User
		if err := a.DB.First(&user, video.UserID).Error; err == nil {
			url, err := a.Store.DownloadURL(c.Request.Context(), req.ConvertedKey, downloadURLTTL)
			if err != nil {
				log.Warn().Err(err).Str("key", req.ConvertedKey).Msg("presign download failed")
			}
			a.Mail.SendConversionComplete(user.Email, user.FirstName, video.OriginalFileName, url)

			var completed int64
			a.DB.Model(&db.Video{}).
				Where("user_id = ? AND status = ?", user.ID, "completed").Count(&completed)
			if completed == 1 {
				a.issueTrialCoupon(&user)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Queue lists a user's videos that are still moving through conversion.
func (a *API) Queue(c *gin.Context) {
	query := a.DB.Where("status IN ?", []string{"uploaded", "queued", "processing"}).
		Order("created_at asc")
	if userID := c.Query("userId"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var videos []db.Video
	if err := query.Find(&videos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": videos})
}

// VideoStats summarizes conversion outcomes.
func (a *API) VideoStats(c *gin.Context) {
	counts := map[string]int64{}
	for _, status := range []string{"uploaded", "queued", "processing", "completed", "failed"} {
		var n int64
		a.DB.Model(&db.Video{}).Where("status = ?", status).Count(&n)
		counts[status] = n
	}

	finished := counts["completed"] + counts["failed"]
	successRate := 0.0
	if finished > 0 {
		successRate = math.Round(float64(counts["completed"])/float64(finished)*1000) / 10
	}

	c.JSON(http.StatusOK, gin.H{
		"counts":      counts,
		"successRate": successRate,
	})
}

// DownloadURL re-issues a presigned download link for a finished video.
func (a *API) DownloadURL(c *gin.Context) {
	var video db.Video
	if err := a.DB.First(&video, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}
	if video.Status != "completed" || video.ConvertedKey == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "Conversion not finished yet"})
		return
	}

	url, err := a.Store.DownloadURL(c.Request.Context(), video.ConvertedKey, downloadURLTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create download URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloadUrl": url})
}
