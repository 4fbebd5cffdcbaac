package websocket

import (
	"log"
)

// push 是一条待投递给特定用户的已序列化通知。
type push struct {
	userID  uint
	payload []byte
}

// Hub maintains the set of active notification clients and delivers
// per-user pushes. 每个用户同一时刻只保留一条连接，新连接会顶掉旧连接。
type Hub struct {
	clients    map[uint]*Client
	register   chan *Client
	unregister chan *Client
	direct     chan push
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uint]*Client),
		direct:     make(chan push, 256),
	}
}

// PushToUser queues a payload for delivery to userID if they are connected.
// 非阻塞：通道满时丢弃，调用方（Kafka 消费者）不能被推送卡住，
// 通知本身已经落库，客户端可以通过 API 拉到。
func (h *Hub) PushToUser(userID uint, payload []byte) {
	select {
	case h.direct <- push{userID: userID, payload: payload}:
	default:
		log.Printf("警告: Hub direct channel is full. Dropping push for user %d", userID)
	}
}

// Run starts the hub and listens for messages on its channels.
func (h *Hub) Run() {
	log.Println("Notification Hub run loop started.")
	for {
		select {
		case client := <-h.register:
			if existingClient, ok := h.clients[client.UserID]; ok {
				log.Printf("用户 %d 已有连接，关闭旧连接并注册新连接。", client.UserID)
				close(existingClient.send)
			}
			h.clients[client.UserID] = client

		case client := <-h.unregister:
			// 只注销仍然登记在册的那条连接，避免关闭已被替换的新连接
			if storedClient, ok := h.clients[client.UserID]; ok && storedClient == client {
				delete(h.clients, client.UserID)
				close(client.send)
			}

		case p := <-h.direct:
			client, ok := h.clients[p.userID]
			if !ok {
				continue // 用户不在线，通知已落库，无需投递
			}
			select {
			case client.send <- p.payload:
			default:
				log.Printf("客户端 %d 的发送通道已满，移除客户端。", p.userID)
				close(client.send)
				delete(h.clients, p.userID)
			}
		}
	}
}
