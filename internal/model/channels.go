package model

import "taskstream/pkg/constants"

// TaskChannel returns the channel carrying events for one task.
func TaskChannel(taskID string) string {
	return constants.ChannelTaskPrefix + taskID
}

// DocumentChannel returns the channel for one document's task events.
func DocumentChannel(documentID string) string {
	return constants.ChannelDocumentPrefix + documentID
}

// QueryChannel returns the channel for one query's task events.
func QueryChannel(queryID string) string {
	return constants.ChannelQueryPrefix + queryID
}

// UserChannel returns the channel for one user's task events.
func UserChannel(userID string) string {
	return constants.ChannelUserPrefix + userID
}

// ResolveChannels maps a status message to the set of channels it must
// be delivered to. Deterministic: always the task channel and the
// global channel, plus one channel per correlation id that is set.
func ResolveChannels(msg *TaskStatusMessage) []string {
	channels := make([]string, 0, 5)
	channels = append(channels, TaskChannel(msg.TaskID))
	if msg.DocumentID != "" {
		channels = append(channels, DocumentChannel(msg.DocumentID))
	}
	if msg.QueryID != "" {
		channels = append(channels, QueryChannel(msg.QueryID))
	}
	if msg.UserID != "" {
		channels = append(channels, UserChannel(msg.UserID))
	}
	channels = append(channels, constants.ChannelGlobalTasks)
	return channels
}
