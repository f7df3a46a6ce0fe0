package controllers

import (
	"container/heap"

	"github.com/pbdl/pinterest-board-downloader/internal/models"
)

// retryQueue is a min-heap of tasks waiting for their retry delay to
// elapse, ordered by ReadyAt
type retryQueue []*models.DownloadTask

func (q retryQueue) Len() int           { return len(q) }
func (q retryQueue) Less(i, j int) bool { return q[i].ReadyAt.Before(q[j].ReadyAt) }
func (q retryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *retryQueue) Push(x interface{}) {
	*q = append(*q, x.(*models.DownloadTask))
}

func (q *retryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return task
}

// peek returns the task that becomes ready first
func (q retryQueue) peek() *models.DownloadTask { return q[0] }

func (q *retryQueue) push(task *models.DownloadTask) { heap.Push(q, task) }

func (q *retryQueue) pop() *models.DownloadTask {
	return heap.Pop(q).(*models.DownloadTask)
}
